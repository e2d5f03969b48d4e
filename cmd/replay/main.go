package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"tactica.ai/internal/persistence/snapshot"
	"tactica.ai/internal/sim/driver"
	"tactica.ai/internal/sim/notify"
	"tactica.ai/internal/sim/simerr"
)

func main() {
	var (
		logPath    = flag.String("log", "", "path to <session>.jsonl.zst")
		snapPath   = flag.String("snapshot", "", "snapshot whose digest must match the replayed tick (optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop after tick (inclusive, optional)")
		skipVerify = flag.Bool("skip_verify", false, "replay without comparing digests")
		verbose    = flag.Bool("v", false, "print notifications as they are published")
	)
	flag.Parse()

	if *logPath == "" {
		fmt.Fprintln(os.Stderr, "missing -log")
		os.Exit(2)
	}

	res, err := replay(replayOptions{
		LogPath:    *logPath,
		SnapPath:   *snapPath,
		ToTick:     *toTick,
		SkipVerify: *skipVerify,
		Out:        notesWriter(*verbose),
	})
	if err != nil {
		var se *simerr.Error
		if errors.As(err, &se) && se.Code == simerr.CodeReplayMismatch {
			fmt.Fprintf(os.Stderr, "replay mismatch at tick %s: want=%s got=%s\n", se.Metadata["tick"], se.Metadata["want"], se.Metadata["got"])
			os.Exit(3)
		}
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: session=%s level=%s seed=%d ticks=%d verified=%d state=%s reason=%q\n",
		res.Session, res.Level, res.Seed, res.Ticks, res.Verified, res.LevelState, res.EndReason)
}

func notesWriter(verbose bool) io.Writer {
	if verbose {
		return os.Stdout
	}
	return nil
}

type replayOptions struct {
	LogPath    string
	SnapPath   string
	ToTick     uint64
	SkipVerify bool
	// Out receives one line per notification when non-nil.
	Out io.Writer
}

type replayResult struct {
	Session    string
	Level      string
	Seed       int32
	Ticks      uint64
	Verified   uint64
	LevelState string
	EndReason  string
}

func replay(opts replayOptions) (replayResult, error) {
	var res replayResult

	var snapHdr *snapshot.Header
	if opts.SnapPath != "" {
		h, err := snapshot.ReadHeader(opts.SnapPath)
		if err != nil {
			return res, fmt.Errorf("read snapshot: %w", err)
		}
		snapHdr = &h
	}

	bus := notify.NewBus()
	if opts.Out != nil {
		bus.SubscribeAll(func(n notify.Notification) {
			fmt.Fprintf(opts.Out, "tick=%d %s rule=%s unit=%d name=%s text=%q reason=%q\n",
				n.Tick, n.Kind, n.Rule, n.Unit, n.Name, n.Text, n.Reason)
		})
	}

	r := driver.NewReplay(driver.ReplayConfig{
		Path:       opts.LogPath,
		SkipVerify: opts.SkipVerify,
		Bus:        bus,
		Logger:     log.New(os.Stderr, "[replay] ", log.LstdFlags),
	})
	if err := r.Init(); err != nil {
		return res, err
	}
	defer r.End()
	if err := r.Start(); err != nil {
		return res, err
	}
	h := r.Header()
	res.Session, res.Level, res.Seed = h.Session, h.Level.ID, h.Seed
	if snapHdr != nil && snapHdr.Session != "" && snapHdr.Session != h.Session {
		return res, fmt.Errorf("snapshot session %s does not match log session %s", snapHdr.Session, h.Session)
	}

	snapChecked := false
	for {
		err := r.Loop()
		if errors.Is(err, driver.ErrFinished) {
			break
		}
		if err != nil {
			return res, err
		}
		st := r.Session().Latest()
		if snapHdr != nil && st.Tick == snapHdr.Tick {
			if st.Digest != snapHdr.Digest {
				return res, simerr.WithMetadata(simerr.CodeReplayMismatch, "snapshot digest mismatch", map[string]string{
					"tick": fmt.Sprint(st.Tick),
					"want": snapHdr.Digest,
					"got":  st.Digest,
				})
			}
			snapChecked = true
		}
		if opts.ToTick != 0 && st.Tick >= opts.ToTick {
			break
		}
	}
	if snapHdr != nil && !snapChecked {
		return res, fmt.Errorf("log never reached snapshot tick %d", snapHdr.Tick)
	}

	s := r.Session()
	res.Ticks = s.Tick()
	res.Verified = r.Verified()
	if st := s.Latest(); st != nil {
		res.LevelState, res.EndReason = st.LevelState, st.EndReason
	}
	return res, nil
}
