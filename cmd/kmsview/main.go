// Command kmsview drives a connected display directly through KMS:
// it picks a connector, allocates a dumb framebuffer, draws color
// bars into it and lights the pipeline up with a single atomic
// commit. Run it from a virtual terminal; a display server will hold
// the device busy.
package main

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/NeowayLabs/kms"
	"github.com/NeowayLabs/kms/fourcc"
)

var (
	cardNum   int
	connName  string
	holdFor   time.Duration
	debugLogs bool
)

func main() {
	root := &cobra.Command{
		Use:          "kmsview",
		Short:        "show color bars on a display via an atomic KMS commit",
		RunE:         run,
		SilenceUsage: true,
	}
	root.Flags().IntVar(&cardNum, "card", 0, "DRI card number to open")
	root.Flags().StringVar(&connName, "connector", "", `connector to drive (e.g. "HDMI-A-1"); default is the first connected one`)
	root.Flags().DurationVar(&holdFor, "duration", 5*time.Second, "how long to hold the pattern on screen")
	root.Flags().BoolVar(&debugLogs, "debug", false, "log every staged property and ioctl")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := zerolog.InfoLevel
	if debugLogs {
		level = zerolog.TraceLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	dev, err := kms.OpenCard(cardNum, kms.WithLogger(log))
	if err != nil {
		return err
	}
	defer dev.Close()

	v := dev.Version()
	log.Info().Str("driver", v.Name).Msg("device open")

	conn, err := pickConnector(dev)
	if err != nil {
		return err
	}
	mode, err := conn.PreferredMode()
	if err != nil {
		return fmt.Errorf("%s has no modes: %w", conn.Name(), err)
	}
	crtc, _, err := dev.PipeFor(conn)
	if err != nil {
		return fmt.Errorf("no free pipe for %s: %w", conn.Name(), err)
	}
	plane, err := primaryPlane(dev, crtc)
	if err != nil {
		return err
	}
	log.Info().
		Str("connector", conn.Name()).
		Stringer("mode", mode).
		Uint32("crtc", crtc.ObjectID()).
		Uint32("plane", plane.ObjectID()).
		Msg("pipeline selected")

	w, h := uint32(mode.Width()), uint32(mode.Height())
	fb, err := dev.CreateFramebuffer(w, h, fourcc.XRGB8888)
	if err != nil {
		return err
	}
	buf, err := fb.Map()
	if err != nil {
		fb.Destroy()
		return err
	}
	if err := drawBars(buf, fb); err != nil {
		fb.Destroy()
		return err
	}
	buf.Close()

	// Pre-flight the configuration, then commit it for real. Each
	// transaction is single-use, so the scene is staged twice.
	probe, err := stageScene(dev, conn, crtc, plane, mode, fb)
	if err != nil {
		fb.Destroy()
		return err
	}
	if err := probe.Commit(kms.CommitTestOnly); err != nil {
		fb.Destroy()
		return fmt.Errorf("configuration refused: %w", err)
	}
	txn, err := stageScene(dev, conn, crtc, plane, mode, fb)
	if err != nil {
		fb.Destroy()
		return err
	}
	if err := txn.Commit(kms.CommitSynchronous); err != nil {
		fb.Destroy()
		return err
	}
	log.Info().Dur("duration", holdFor).Msg("pattern on screen")
	time.Sleep(holdFor)

	if err := tearDown(dev, conn, crtc, plane); err != nil {
		return err
	}
	return fb.Destroy()
}

func pickConnector(dev *kms.Device) (*kms.Connector, error) {
	for _, conn := range dev.Connectors() {
		if connName != "" {
			if conn.Name() == connName {
				return conn, nil
			}
			continue
		}
		status, err := conn.Status()
		if err != nil {
			return nil, err
		}
		if status == kms.StatusConnected {
			return conn, nil
		}
	}
	if connName != "" {
		return nil, fmt.Errorf("connector %q: %w", connName, kms.ErrNotFound)
	}
	return nil, fmt.Errorf("no connected connector: %w", kms.ErrNotFound)
}

func primaryPlane(dev *kms.Device, crtc *kms.Crtc) (*kms.Plane, error) {
	for _, plane := range dev.Planes() {
		if !plane.CompatibleWith(crtc) || !plane.Supports(fourcc.XRGB8888) {
			continue
		}
		typ, err := plane.Type()
		if err != nil {
			return nil, err
		}
		if typ == kms.PlanePrimary {
			return plane, nil
		}
	}
	return nil, fmt.Errorf("no primary plane for %s: %w", crtc, kms.ErrNotFound)
}

func stageScene(dev *kms.Device, conn *kms.Connector, crtc *kms.Crtc,
	plane *kms.Plane, mode kms.Mode, fb *kms.Framebuffer) (*kms.Transaction, error) {

	txn := dev.NewTransaction()
	if err := txn.SetActive(crtc, true); err != nil {
		return nil, err
	}
	if err := txn.SetMode(crtc, mode); err != nil {
		return nil, err
	}
	if err := txn.SetCrtcForConnector(conn, crtc); err != nil {
		return nil, err
	}
	if err := txn.SetCrtcForPlane(plane, crtc); err != nil {
		return nil, err
	}
	if err := txn.SetFramebuffer(plane, fb); err != nil {
		return nil, err
	}
	if err := txn.SetDisplayRect(plane, 0, 0, fb.Width(), fb.Height()); err != nil {
		return nil, err
	}
	if err := txn.SetSourceRect(plane, 0, 0, float64(fb.Width()), float64(fb.Height())); err != nil {
		return nil, err
	}
	return txn, nil
}

func tearDown(dev *kms.Device, conn *kms.Connector, crtc *kms.Crtc, plane *kms.Plane) error {
	txn := dev.NewTransaction()
	if err := txn.SetFramebuffer(plane, nil); err != nil {
		return err
	}
	if err := txn.SetCrtcForPlane(plane, nil); err != nil {
		return err
	}
	if err := txn.SetCrtcForConnector(conn, nil); err != nil {
		return err
	}
	if err := txn.Set(crtc, "MODE_ID", 0); err != nil {
		return err
	}
	if err := txn.SetActive(crtc, false); err != nil {
		return err
	}
	return txn.Commit(kms.CommitSynchronous)
}

// bars are the classic SMPTE top-row colors in XRGB8888.
var bars = [...]uint32{
	0x00c0c0c0, // white
	0x00c0c000, // yellow
	0x0000c0c0, // cyan
	0x0000c000, // green
	0x00c000c0, // magenta
	0x00c00000, // red
	0x000000c0, // blue
	0x00000000, // black
}

func drawBars(buf *kms.Buffer, fb *kms.Framebuffer) error {
	width := int(fb.Width())
	for y := 0; y < int(fb.Height()); y++ {
		row, err := buf.Row(y)
		if err != nil {
			return err
		}
		for x := 0; x < width; x++ {
			c := bars[x*len(bars)/width]
			binary.LittleEndian.PutUint32(row[x*4:], c)
		}
	}
	return nil
}
