// Copyright 2023, DASH-Industry Forum. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/sevketarisu/quic-streaming/cmd/dashclient/app"
	"github.com/sevketarisu/quic-streaming/internal"
)

var usg = `Usage of %s:

%s plays back a DASH VoD asset, choosing a bitrate per segment with one of
three adaptive-bitrate policies, and reports the result.

$ %s --MPD https://dash.akamaized.net/WAVE/vectors/cfhd_sets/12.5_25_50/t1/2022-10-17/stream.mpd --PLAYBACK sara
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-v" || os.Args[1] == "--version") {
		fmt.Printf("dashclient: %s\n", internal.GetVersion())
		os.Exit(0)
	}

	cfg, err := app.LoadConfig(os.Args)
	if err != nil {
		name := os.Args[0]
		fmt.Fprintf(os.Stderr, usg, name, name, name)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
