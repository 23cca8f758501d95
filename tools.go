// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

//go:build tools
// +build tools

// Package main pins tool and test dependencies to go.mod.
// See https://go.dev/wiki/Modules#how-can-i-track-tool-dependencies-for-a-module
package main

import (
	// Testing frameworks
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "github.com/onsi/gomega"
	_ "github.com/pashagolub/pgxmock/v4"
	_ "github.com/stretchr/testify/mock"
	_ "go.uber.org/goleak"

	// Integration test containers
	_ "github.com/testcontainers/testcontainers-go/modules/postgres"
)
