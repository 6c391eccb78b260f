// Package main provides the admin CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/autodj/internal/api/connect"
	controlv1 "github.com/osa030/autodj/internal/api/controlv1"
	"github.com/osa030/autodj/internal/api/controlv1/controlv1connect"
)

var (
	app    = kingpin.New("autodj-admincli", "autodj engine admin client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Admin token (or set ADMIN_TOKEN env)").Envar("ADMIN_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Get engine status")

	// start command
	startCmd = app.Command("start", "Start a session")

	// stop command
	stopCmd = app.Command("stop", "Stop the session")

	// skip command
	skipCmd = app.Command("skip", "Crossfade to the next-up track now").Alias("mix-now")

	// set-interval command
	setIntervalCmd     = app.Command("set-interval", "Set the mix interval")
	setIntervalSeconds = setIntervalCmd.Arg("seconds", "Interval in seconds (15-180)").Required().Int32()

	// set-fade command
	setFadeCmd     = app.Command("set-fade", "Set the crossfade duration")
	setFadeSeconds = setFadeCmd.Arg("seconds", "Fade in seconds (4-20)").Required().Int32()

	// set-energy command
	setEnergyCmd   = app.Command("set-energy", "Set the target energy")
	setEnergyValue = setEnergyCmd.Arg("energy", "Target energy (0-1)").Required().Float64()

	// watch command
	watchCmd = app.Command("watch", "Print engine events until interrupted")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *token == "" {
		fmt.Println("Error: admin token is required (use --token or ADMIN_TOKEN env)")
		os.Exit(1)
	}

	client := controlv1connect.NewControlServiceClient(
		http.DefaultClient,
		*server,
		apiconnect.WithAdminToken(*token),
	)

	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		resp, err := client.GetStatus(ctx, connect.NewRequest(&controlv1.GetStatusRequest{}))
		printStatus(resp, err)
	case startCmd.FullCommand():
		resp, err := client.Start(ctx, connect.NewRequest(&controlv1.StartRequest{}))
		report("Session started", resp, err)
	case stopCmd.FullCommand():
		resp, err := client.Stop(ctx, connect.NewRequest(&controlv1.StopRequest{}))
		report("Session stopped", resp, err)
	case skipCmd.FullCommand():
		resp, err := client.Skip(ctx, connect.NewRequest(&controlv1.SkipRequest{}))
		report("Transition started", resp, err)
	case setIntervalCmd.FullCommand():
		resp, err := client.SetMixInterval(ctx, connect.NewRequest(&controlv1.SetMixIntervalRequest{Seconds: *setIntervalSeconds}))
		report(fmt.Sprintf("Mix interval set to %ds", *setIntervalSeconds), resp, err)
	case setFadeCmd.FullCommand():
		resp, err := client.SetFadeDuration(ctx, connect.NewRequest(&controlv1.SetFadeDurationRequest{Seconds: *setFadeSeconds}))
		report(fmt.Sprintf("Fade duration set to %ds", *setFadeSeconds), resp, err)
	case setEnergyCmd.FullCommand():
		resp, err := client.SetTargetEnergy(ctx, connect.NewRequest(&controlv1.SetTargetEnergyRequest{Energy: *setEnergyValue}))
		report(fmt.Sprintf("Target energy set to %.2f", *setEnergyValue), resp, err)
	case watchCmd.FullCommand():
		watch(ctx, client)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func report(done string, resp *connect.Response[controlv1.StatusResponse], err error) {
	exitOnError(err)
	fmt.Println(done)
	if s := resp.Msg.Status; s != nil {
		fmt.Printf("State: %s\n", s.State)
	}
}

func printStatus(resp *connect.Response[controlv1.StatusResponse], err error) {
	exitOnError(err)

	s := resp.Msg.Status
	fmt.Println("\n=== ENGINE STATUS ===")
	fmt.Printf("State: %s\n", s.State)
	if s.SessionID != "" {
		fmt.Printf("Session ID: %s\n", s.SessionID)
		fmt.Printf("Source: %s\n", s.Source)
	}
	fmt.Printf("Mix Interval: %ds\n", s.MixIntervalSec)
	fmt.Printf("Fade Duration: %ds\n", s.FadeSec)
	fmt.Printf("Target Energy: %.2f\n", s.TargetEnergy)
	fmt.Printf("Listeners: %d\n", s.Listeners)

	if s.NowPlaying != nil {
		fmt.Printf("\nNow Playing (channel %s):\n", s.ActiveChannel)
		printTrack(s.NowPlaying)
	} else {
		fmt.Println("\nNo track currently playing")
	}
	if s.NextUp != nil {
		fmt.Println("\nNext Up:")
		printTrack(s.NextUp)
	}
	if s.Transitions > 0 {
		fmt.Printf("\nTransitions: %d\n", s.Transitions)
	}
	if len(s.History) > 0 {
		ids := make([]string, len(s.History))
		for i, id := range s.History {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Printf("History: %s\n", strings.Join(ids, ","))
	}
	if s.LastError != "" {
		fmt.Printf("\nLast Error: %s\n", s.LastError)
	}
	fmt.Println()
}

func printTrack(t *controlv1.Track) {
	fmt.Printf("  Track ID: %d\n", t.ID)
	fmt.Printf("  Name: %s\n", t.Name)
	fmt.Printf("  BPM: %.1f\n", t.BPM)
	fmt.Printf("  Energy: %.2f\n", t.Energy)
	fmt.Printf("  Duration: %.0f seconds\n", t.DurationSec)
}

func watch(ctx context.Context, client controlv1connect.ControlServiceClient) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stream, err := client.SubscribeEvents(ctx, connect.NewRequest(&controlv1.SubscribeEventsRequest{}))
	exitOnError(err)
	defer stream.Close()

	for stream.Receive() {
		ev := stream.Msg()
		line := fmt.Sprintf("[%d] %s", ev.SequenceNo, ev.Type)
		if ev.Track != nil {
			line += fmt.Sprintf(" track=#%d %s", ev.Track.ID, ev.Track.Name)
		}
		if ev.Reason != "" {
			line += " reason=" + ev.Reason
		}
		if ev.Message != "" {
			line += " message=" + ev.Message
		}
		if ev.Status != nil {
			line += " state=" + ev.Status.State
		}
		fmt.Println(line)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		exitOnError(err)
	}
}
