// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package identity adapts identity providers to the small surface the session
// coordinator needs: interactive login, interactive logout and the account list.
//
// Adapters:
//   - MSAL: Microsoft identity platform public client (browser login)
//   - Device: OAuth2 device authorization grant, for headless terminals
//   - Static: offline provider for demos and tests
//
// Every adapter classifies failures into ErrCancelled, ErrProvider or
// ErrNetwork so callers can branch with errors.Is.
package identity
