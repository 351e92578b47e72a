package cli

import (
	"context"
	"errors"

	"github.com/dkeye/Huddle/internal/adapters/rtc"
	"github.com/dkeye/Huddle/internal/adapters/signalclient"
	"github.com/dkeye/Huddle/internal/app/media"
	"github.com/dkeye/Huddle/internal/app/meeting"
	"github.com/dkeye/Huddle/internal/app/mesh"
	"github.com/dkeye/Huddle/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	ErrHubClosed = errors.New("hub connection closed")
	ErrRejected  = errors.New("host rejected the request")
)

func openSource(port int) (core.MediaSource, error) {
	if port == 0 {
		return nil, nil
	}
	src, err := rtc.ListenUDP(port)
	if err != nil {
		return nil, err
	}
	return src, nil
}

func runSession(ctx context.Context, o sessionOptions) error {
	sig, err := signalclient.Dial(ctx, o.server)
	if err != nil {
		return err
	}
	defer sig.Close()

	orch := mesh.New(
		mesh.Config{MaxPendingCandidates: o.maxPending},
		sig,
		rtc.Factory{Config: rtc.ICEConfig(o.ice, o.turnUser, o.turnPass)},
		media.NewCaptureManager(),
	)
	ctl := meeting.New(sig, orch)

	audio, err := openSource(o.audioPort)
	if err != nil {
		return err
	}
	camera, err := openSource(o.videoPort)
	if err != nil {
		if audio != nil {
			_ = audio.Close()
		}
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := orch.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case frame, ok := <-sig.Incoming():
				if !ok {
					return ErrHubClosed
				}
				ctl.HandleFrame(frame)
			}
		}
	})

	g.Go(func() error {
		return watchNotices(gctx, ctl, orch, o)
	})

	g.Go(func() error {
		watchMesh(gctx, orch)
		return nil
	})

	if err := ctl.Join(o.room, o.name, audio, camera); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	log.Info().Str("module", "cli").Str("room_id", string(o.room)).Str("name", o.name).Msg("join requested")

	err = g.Wait()
	if ctl.State() == meeting.StateAdmitted {
		_ = ctl.Leave()
	}
	orch.Close()
	return err
}

func watchNotices(ctx context.Context, ctl *meeting.Controller, orch *mesh.Orchestrator, o sessionOptions) error {
	for {
		var n meeting.Notice
		select {
		case <-ctx.Done():
			return nil
		case n = <-ctl.Notices():
		}

		switch n.Kind {
		case meeting.NoticeState:
			log.Info().Str("module", "cli").Str("state", n.State.String()).Msg("meeting state")
			switch n.State {
			case meeting.StateRejected:
				return ErrRejected
			case meeting.StateAdmitted:
				onAdmitted(ctl, orch, o)
			}
		case meeting.NoticeWaiting:
			log.Info().Str("module", "cli").Str("user_id", string(n.UserID)).Str("name", n.Name).Msg("waiting for approval")
			if o.autoApprove {
				if err := ctl.Approve(n.UserID); err != nil {
					log.Warn().Err(err).Str("module", "cli").Msg("approve")
				}
			}
		case meeting.NoticeHostLeft:
			log.Info().Str("module", "cli").Msg("host left the meeting")
		case meeting.NoticeChat:
			log.Info().Str("module", "cli").Str("from", n.Name).Str("text", n.Text).Msg("chat")
		case meeting.NoticeRole:
			log.Info().Str("module", "cli").Str("role", string(n.Role)).Msg("role")
		case meeting.NoticeError:
			log.Warn().Str("module", "cli").Str("error", n.Text).Msg("hub error")
		}
	}
}

func onAdmitted(ctl *meeting.Controller, orch *mesh.Orchestrator, o sessionOptions) {
	if o.screenPort != 0 {
		src, err := rtc.ListenUDP(o.screenPort)
		if err != nil {
			log.Warn().Err(err).Str("module", "cli").Msg("screen source")
		} else if err := orch.StartScreenShare(src); err != nil {
			_ = src.Close()
			log.Warn().Err(err).Str("module", "cli").Msg("screen share")
		}
	}
	if o.say != "" {
		if err := ctl.Chat(o.say); err != nil {
			log.Warn().Err(err).Str("module", "cli").Msg("chat")
		}
	}
}

func watchMesh(ctx context.Context, orch *mesh.Orchestrator) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-orch.Events():
			if !ok {
				return
			}
			switch e := ev.(type) {
			case mesh.RemoteTrack:
				go drainRemote(e)
			case mesh.SessionStateChanged:
				log.Info().Str("module", "cli").Str("remote_id", string(e.RemoteID)).Str("state", e.State.String()).Msg("session")
			case mesh.SessionRemoved:
				log.Info().Str("module", "cli").Str("remote_id", string(e.RemoteID)).Str("reason", e.Reason).Msg("session removed")
			case mesh.MediaState:
				log.Info().Str("module", "cli").Bool("mic", e.Microphone).Bool("camera", e.Camera).Bool("screen", e.ScreenShare).Msg("local media")
			case mesh.NegotiationFailed:
				log.Warn().Err(e.Err).Str("module", "cli").Msg("negotiation failed")
			}
		}
	}
}

// drainRemote reads a remote track until its session closes.
func drainRemote(e mesh.RemoteTrack) {
	var packets int
	kind := e.Track.Kind()
	defer func() {
		log.Info().Str("module", "cli").Str("remote_id", string(e.RemoteID)).Str("kind", kind.String()).Int("packets", packets).Msg("remote track ended")
	}()
	for {
		if _, _, err := e.Track.ReadRTP(); err != nil {
			return
		}
		packets++
		if kind == webrtc.RTPCodecTypeVideo && packets == 1 {
			log.Info().Str("module", "cli").Str("remote_id", string(e.RemoteID)).Msg("first video packet")
		}
	}
}
