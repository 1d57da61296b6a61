// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness multiplexer driving the server loop:
// level-triggered epoll with an eventfd so other goroutines can interrupt a
// blocked Wait.
package reactor
