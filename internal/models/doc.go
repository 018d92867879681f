// Package models defines the domain entities of the device linking service.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: database-backed models implementing [Model]
//   - [Device] : a registered hardware client and its optional refresh token
//
// 2. Data Transfer Objects: values exchanged with devices and the provider
//   - [Registration] : the outcome of registering a device
//   - [TokenPayload] : the result of exchanging an authorization code
//   - [AccessGrant] : a refreshed access token
//   - [Playback] : either [NotPlaying] or a [PlaybackSnapshot]
//
// Fields the provider may omit are modelled with [Optional] rather than zero values.
package models
