// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package recovery turns idle events into a user decision and runs the chosen
// workflow.
//
// A TIMEOUT_EXCEEDED event makes a decision pending and shows the prompt. The
// user answers with SubmitDecision:
//
//   - Reauthenticate: every registered surface is snapshotted, then the identity
//     provider's interactive login runs. On success the idle machine is rearmed
//     and the prompt closes. On failure nothing is reset and the prompt comes back.
//   - SignOut: interactive logout runs and the session ends, whatever the
//     provider reports.
//
// SESSION_EXPIRED takes the choice away: the prompt is withdrawn, an in-flight
// login is cancelled and the session is signed out.
package recovery
