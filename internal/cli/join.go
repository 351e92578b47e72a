package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/dkeye/Huddle/internal/platform/logger"
	"github.com/spf13/cobra"
)

var (
	flagServer      string
	flagName        string
	flagAudioPort   int
	flagVideoPort   int
	flagScreenPort  int
	flagICE         []string
	flagTURNUser    string
	flagTURNPass    string
	flagAutoApprove bool
	flagSay         string
)

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a meeting room",
	Long: `Join a meeting room and stay until interrupted.

Examples:
  meshclient join standup --name Hana --audio-port 5004 --video-port 5006
  meshclient join standup --name Bot --auto-approve`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		opts := resolveOptions(cmd, cfg, args[0])
		logger.Setup(opts.logLevel, cfg.LogFormat)
		if err := domain.ValidateDisplayName(opts.name); err != nil {
			return fmt.Errorf("--name: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runSession(ctx, opts)
	},
}

func init() {
	f := joinCmd.Flags()
	f.StringVar(&flagServer, "server", "", "hub websocket URL")
	f.StringVar(&flagName, "name", "", "display name")
	f.IntVar(&flagAudioPort, "audio-port", 0, "local UDP port carrying Opus RTP (0 disables)")
	f.IntVar(&flagVideoPort, "video-port", 0, "local UDP port carrying VP8 RTP (0 disables)")
	f.IntVar(&flagScreenPort, "screen-port", 0, "local UDP port carrying the screen share as VP8 RTP")
	f.StringSliceVar(&flagICE, "ice", nil, "STUN/TURN URLs")
	f.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	f.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	f.BoolVar(&flagAutoApprove, "auto-approve", false, "approve every waiting participant when hosting")
	f.StringVar(&flagSay, "say", "", "chat message to post once admitted")
}

type sessionOptions struct {
	room        domain.RoomID
	name        string
	server      string
	audioPort   int
	videoPort   int
	screenPort  int
	ice         []string
	turnUser    string
	turnPass    string
	maxPending  int
	autoApprove bool
	say         string
	logLevel    string
}

// resolveOptions layers explicitly set flags over the config file.
func resolveOptions(cmd *cobra.Command, cfg *config.Config, room string) sessionOptions {
	cc := cfg.Client
	o := sessionOptions{
		room:        domain.RoomID(room),
		name:        flagName,
		server:      cc.ServerURL,
		audioPort:   cc.AudioPort,
		videoPort:   cc.VideoPort,
		screenPort:  cc.ScreenPort,
		ice:         cc.ICEServers,
		turnUser:    cc.TURNUsername,
		turnPass:    cc.TURNPassword,
		maxPending:  cc.MaxPendingCandidates,
		autoApprove: flagAutoApprove,
		say:         flagSay,
		logLevel:    cfg.LogLevel,
	}
	f := cmd.Flags()
	if f.Changed("server") {
		o.server = flagServer
	}
	if f.Changed("audio-port") {
		o.audioPort = flagAudioPort
	}
	if f.Changed("video-port") {
		o.videoPort = flagVideoPort
	}
	if f.Changed("screen-port") {
		o.screenPort = flagScreenPort
	}
	if f.Changed("ice") {
		o.ice = flagICE
	}
	if f.Changed("turn-user") {
		o.turnUser = flagTURNUser
	}
	if f.Changed("turn-pass") {
		o.turnPass = flagTURNPass
	}
	if flagLogLevel != "" {
		o.logLevel = flagLogLevel
	}
	return o
}
