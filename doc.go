// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package dali runs a server answering HTTP requests with synthetic,
// fixed size response bodies, for load testing proxies, clients and
// networks.
//
// Each configured route declares a size, directly or inherited from an
// enclosing route, and a strategy for materializing the body: a shared
// in memory filler block referenced repeatedly, or a window of an all
// zeros source. Neither strategy ever copies body content per request.
//
// An application is assembled from an [AppBuilder] and config sources
// and is started with [Run]:
//
//	err := dali.Run(ctx, appbuilder.OTel(server.Builder()), config.FromYaml(f))
package dali
