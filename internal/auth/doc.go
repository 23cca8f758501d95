// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

// Package auth provides account registration, email verification, login
// and password reset for Quill.
//
// # Domain Types
//
// Users should be created with NewUser, which validates and normalizes
// the email and name and assigns a public id. Passwords are hashed by a
// PasswordHasher before a User is built; the plaintext never reaches a
// UserStore.
//
// # Transitions
//
// State changes are pure functions over a User snapshot:
//   - IssueToken - records a fresh verification or reset token digest
//   - ConsumeVerification - marks the email verified, clearing the token
//   - ConsumeReset - replaces the password hash, clearing the token
//   - RehashPassword - upgrades a legacy password hash
//
// Each returns the next snapshot and a Change, which a UserStore applies
// with UserStore.Save. Consuming changes are guarded by the expected token
// digest so that a token takes effect at most once.
//
// # Services
//
//   - TokenService - issues, resolves and consumes single-use tokens
//   - SessionIssuer - signs and verifies session tokens
//   - Service - the Register, Verify, Login, Forgot and Reset flows
//
// Services are created with New* constructors that validate dependencies.
package auth
