package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/banshee-data/marker.studio/internal/api"
	"github.com/banshee-data/marker.studio/internal/db"
	"github.com/banshee-data/marker.studio/internal/filter"
	"github.com/banshee-data/marker.studio/internal/markers"
	"github.com/banshee-data/marker.studio/internal/monitoring"
	"github.com/banshee-data/marker.studio/internal/repair"
	"github.com/banshee-data/marker.studio/internal/report"
	"github.com/banshee-data/marker.studio/internal/session"
	"github.com/banshee-data/marker.studio/internal/skeleton"
	"github.com/banshee-data/marker.studio/internal/timeutil"
	"github.com/banshee-data/marker.studio/internal/trc"
	"github.com/banshee-data/marker.studio/internal/visualiser"
)

// inputFlags are shared by the commands that load one TRC file.
type inputFlags struct {
	fs    *flag.FlagSet
	model *string
	start *int
	end   *int
}

func newInputFlags(e *env, name, usageLine string) *inputFlags {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "Usage: marker-tool %s [flags] <file.trc>\n%s\n\nFlags:\n", name, usageLine)
		fs.PrintDefaults()
	}
	return &inputFlags{
		fs:    fs,
		model: fs.String("model", "", "skeleton model (default from config)"),
		start: fs.Int("start", -1, "first frame of the range (whole recording when unset)"),
		end:   fs.Int("end", -1, "last frame of the range"),
	}
}

// parse parses args and returns the single positional TRC path.
func (f *inputFlags) parse(args []string) (string, error) {
	if err := f.fs.Parse(args); err != nil {
		return "", errUsage
	}
	if f.fs.NArg() != 1 {
		f.fs.Usage()
		return "", errUsage
	}
	return f.fs.Arg(0), nil
}

func (f *inputFlags) rangeFor(store *markers.Store) (markers.Range, error) {
	switch {
	case *f.start < 0 && *f.end < 0:
		return markers.Whole(store.NumFrames()), nil
	case *f.start < 0 || *f.end < 0:
		return markers.Range{}, markers.InvalidParam("range", nil, "-start and -end must be given together")
	default:
		return markers.NewRange(*f.start, *f.end), nil
	}
}

// open loads path and starts a session on it.
func open(ctx context.Context, e *env, path, model string) (*session.Session, *trc.File, error) {
	f, err := trc.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	opts := session.OptionsFromConfig(e.cfg)
	if model != "" {
		opts.Model = model
	}
	sess, err := session.New(ctx, f.Store, opts)
	if err != nil {
		return nil, nil, err
	}
	monitoring.Debugf("loaded %s: %d markers, %d frames at %g Hz",
		path, len(f.Store.Markers()), f.Store.NumFrames(), f.Store.FPS())
	return sess, f, nil
}

// save writes the session data to out when set and reports the last edit.
func save(e *env, sess *session.Session, f *trc.File, out string) error {
	h := sess.History()
	if len(h) > 0 {
		last := h[len(h)-1]
		fmt.Fprintf(e.stdout, "%s %s: filled=%d changed=%d outliers=%d\n",
			last.Op, last.Marker, last.Filled, last.Changed, last.Outliers)
	}
	if out == "" {
		return nil
	}
	if err := trc.WriteFile(out, sess.Snapshot(), f.Units); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s\n", out)
	return nil
}

func runDetect(ctx context.Context, e *env, args []string) error {
	in := newInputFlags(e, "detect", "List frames whose rigid segment lengths jump.")
	threshold := in.fs.Float64("threshold", 0, "relative length change that flags a frame (default from config)")
	path, err := in.parse(args)
	if err != nil {
		return err
	}
	f, err := trc.ReadFile(path)
	if err != nil {
		return err
	}
	opts := session.OptionsFromConfig(e.cfg)
	if *in.model != "" {
		opts.Model = *in.model
	}
	if *threshold != 0 {
		opts.Threshold = *threshold
	}
	sess, err := session.New(ctx, f.Store, opts)
	if err != nil {
		return err
	}
	mask, err := sess.Mask(ctx)
	if err != nil {
		return err
	}
	pairs := make([]string, len(sess.Pairs()))
	for i, p := range sess.Pairs() {
		pairs[i] = p.String()
	}
	fmt.Fprintf(e.stdout, "model %s, %d rigid pairs: %s\n", sess.Topology().Model, len(pairs), strings.Join(pairs, " "))
	for _, m := range mask.Markers() {
		fmt.Fprintf(e.stdout, "%s\t%d\t%v\n", m, mask.Count(m), mask.Frames(m))
	}
	fmt.Fprintf(e.stdout, "total %d\n", mask.Total())
	return nil
}

func runInterpolate(ctx context.Context, e *env, args []string) error {
	in := newInputFlags(e, "interpolate", "Fill the gaps of one marker with a classical interpolant.")
	marker := in.fs.String("marker", "", "marker to repair (required)")
	method := in.fs.String("method", "", "interpolation method: "+strings.Join(repair.Methods(), ", "))
	order := in.fs.String("order", "", "polynomial or spline order")
	axes := in.fs.String("axes", "XYZ", "axes to repair")
	out := in.fs.String("out", "", "write the repaired data to this TRC file")
	path, err := in.parse(args)
	if err != nil {
		return err
	}
	params, err := session.RepairParamsFromConfig(e.cfg)
	if err != nil {
		return err
	}
	if *method != "" {
		if params.Method, err = repair.ParseMethod(*method); err != nil {
			return err
		}
		params.Order = 0
		if params.Method.NeedsOrder() {
			params.Order = e.cfg.GetInterpolationOrder()
		}
	}
	if *order != "" {
		if params.Order, err = repair.ParseOrder(*order); err != nil {
			return err
		}
	}
	axisSet, err := markers.ParseAxes(*axes)
	if err != nil {
		return err
	}
	sess, f, err := open(ctx, e, path, *in.model)
	if err != nil {
		return err
	}
	rng, err := in.rangeFor(f.Store)
	if err != nil {
		return err
	}
	if _, err := sess.Interpolate(ctx, *marker, axisSet, rng, params); err != nil {
		return err
	}
	return save(e, sess, f, *out)
}

func runPattern(ctx context.Context, e *env, args []string) error {
	in := newInputFlags(e, "pattern", "Fill the gaps of one marker from the motion of reference markers.")
	marker := in.fs.String("marker", "", "marker to repair (required)")
	refs := in.fs.String("refs", "", "comma-separated reference markers")
	out := in.fs.String("out", "", "write the repaired data to this TRC file")
	path, err := in.parse(args)
	if err != nil {
		return err
	}
	var references []string
	for _, r := range strings.Split(*refs, ",") {
		if r = strings.TrimSpace(r); r != "" {
			references = append(references, r)
		}
	}
	sess, f, err := open(ctx, e, path, *in.model)
	if err != nil {
		return err
	}
	rng, err := in.rangeFor(f.Store)
	if err != nil {
		return err
	}
	res, err := sess.InterpolatePattern(ctx, *marker, references, rng)
	if err != nil {
		return err
	}
	monitoring.Debugf("pattern repair of %s anchored at frame %d", *marker, res.Anchor)
	return save(e, sess, f, *out)
}

func runFilter(ctx context.Context, e *env, args []string) error {
	in := newInputFlags(e, "filter", "Smooth one marker, or every marker when -marker is empty.")
	marker := in.fs.String("marker", "", "marker to filter (all when empty)")
	kindName := in.fs.String("kind", e.cfg.GetDefaultFilter(), "filter: "+strings.Join(filter.Kinds(), ", "))
	cutoff := in.fs.Float64("cutoff", e.cfg.GetButterworthCutoffHz(), "butterworth cut-off frequency in Hz")
	bwOrder := in.fs.Int("order", e.cfg.GetButterworthOrder(), "butterworth order")
	trust := in.fs.Float64("trust", e.cfg.GetKalmanTrustRatio(), "kalman trust ratio")
	smooth := in.fs.Bool("smooth", e.cfg.GetKalmanSmooth(), "kalman backward smoothing pass")
	sigma := in.fs.Float64("sigma", e.cfg.GetGaussianSigma(), "gaussian kernel sigma in frames")
	nb := in.fs.Int("values", e.cfg.GetLOESSValues(), "loess window size in frames")
	kernel := in.fs.Int("kernel", e.cfg.GetMedianKernel(), "median kernel size (odd)")
	out := in.fs.String("out", "", "write the filtered data to this TRC file")
	path, err := in.parse(args)
	if err != nil {
		return err
	}
	kind, err := filter.ParseKind(*kindName)
	if err != nil {
		return err
	}
	spec := filter.Spec{
		Kind:        kind,
		Butterworth: filter.Butterworth{Order: *bwOrder, CutoffHz: *cutoff},
		Kalman:      filter.Kalman{TrustRatio: *trust, Smooth: *smooth},
		Gaussian:    filter.Gaussian{SigmaKernel: *sigma},
		LOESS:       filter.LOESS{NbValuesUsed: *nb},
		Median:      filter.Median{KernelSize: *kernel},
	}
	sess, f, err := open(ctx, e, path, *in.model)
	if err != nil {
		return err
	}
	rng, err := in.rangeFor(f.Store)
	if err != nil {
		return err
	}
	targets := []string{*marker}
	if *marker == "" {
		targets = f.Store.Markers()
	}
	for _, m := range targets {
		if _, err := sess.Filter(ctx, m, rng, spec); err != nil {
			return err
		}
	}
	return save(e, sess, f, *out)
}

func runReport(ctx context.Context, e *env, args []string) error {
	in := newInputFlags(e, "report", "Summarise positions, speeds, segment lengths and joint angles.")
	title := in.fs.String("title", "", "report title (default: file name)")
	jsonOut := in.fs.String("json", "", "write the report as JSON to this file (- for stdout)")
	csvOut := in.fs.String("csv", "", "write the summary tables as CSV to this file (- for stdout)")
	plotDir := in.fs.String("plots", "", "write PNG plots into this directory")
	chartsOut := in.fs.String("charts", "", "write interactive charts to this HTML file")
	dbPath := in.fs.String("db", "", "also store the session and report in this database")
	path, err := in.parse(args)
	if err != nil {
		return err
	}
	sess, f, err := open(ctx, e, path, *in.model)
	if err != nil {
		return err
	}
	if *title == "" {
		*title = filepath.Base(path)
	}
	rep, err := sess.Report(ctx, report.Options{Title: *title})
	if err != nil {
		return err
	}

	if *jsonOut == "" && *csvOut == "" && *plotDir == "" && *chartsOut == "" && *dbPath == "" {
		*csvOut = "-"
	}
	if err := writeTo(e, *jsonOut, rep.WriteJSON); err != nil {
		return err
	}
	if err := writeTo(e, *csvOut, rep.WriteCSV); err != nil {
		return err
	}
	if *chartsOut != "" {
		if err := writeTo(e, *chartsOut, rep.WriteCharts); err != nil {
			return err
		}
	}
	if *plotDir != "" {
		size := report.PlotSize{Width: e.cfg.GetReportPlotWidthIn(), Height: e.cfg.GetReportPlotHeightIn()}
		n, err := rep.WritePlots(*plotDir, size)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "wrote %d plots to %s\n", n, *plotDir)
	}
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if _, err := database.CreateSession(ctx, sess.ID(), path, sess.Topology().Model, f.Store); err != nil {
			return err
		}
		id, err := database.SaveReport(ctx, sess.ID(), rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stderr, "stored report %s for session %s\n", id, sess.ID())
	}
	return nil
}

// writeTo opens dest ("-" is stdout) and hands it to write. An empty dest
// is skipped.
func writeTo(e *env, dest string, write func(io.Writer) error) error {
	switch dest {
	case "":
		return nil
	case "-":
		return write(e.stdout)
	}
	fh, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := write(fh); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}

func runServe(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	listen := fs.String("listen", ":8080", "listen address")
	dataDir := fs.String("data", ".", "directory TRC files are opened from")
	dbPath := fs.String("db", e.cfg.GetDatabasePath(), "session database (empty disables persistence)")
	model := fs.String("model", "", "skeleton model for new sessions (default from config)")
	grpcAddr := fs.String("grpc", "localhost:50051", "frame streaming gRPC address (empty disables)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *listen == "" {
		return fmt.Errorf("listen address is required")
	}

	var database *db.DB
	if *dbPath != "" {
		var err error
		if database, err = db.NewDB(*dbPath); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()
	}

	cfg := e.cfg
	if *model != "" {
		m := *model
		if _, err := skeleton.Lookup(m); err != nil {
			return err
		}
		clone := *cfg
		clone.SkeletonModel = &m
		cfg = &clone
	}
	srv := api.NewServer(cfg, database, *dataDir)
	mux := srv.ServeMux()
	if database != nil {
		if err := database.AttachAdminRoutes(mux); err != nil {
			return err
		}
	}
	server := &http.Server{
		Addr:              *listen,
		Handler:           api.LoggingMiddleware(mux, timeutil.RealClock{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var lis net.Listener
	if *grpcAddr != "" {
		var err error
		if lis, err = net.Listen("tcp", *grpcAddr); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", *grpcAddr, err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	if lis != nil {
		gs := grpc.NewServer()
		visualiser.RegisterService(gs, visualiser.NewServer(srv))
		g.Go(func() error {
			monitoring.Logf("[gRPC] frame streaming on %s", lis.Addr())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			monitoring.Logf("[gRPC] shutting down...")
			gs.GracefulStop()
			return nil
		})
	}
	g.Go(func() error {
		monitoring.Logf("listening on %s, data in %s", *listen, *dataDir)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		monitoring.Logf("shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			monitoring.Logf("HTTP server shutdown error: %v", err)
			return server.Close()
		}
		return nil
	})
	return g.Wait()
}

func runFrames(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("frames", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	addr := fs.String("addr", "localhost:50051", "serve's gRPC address")
	id := fs.String("session", "", "session ID (empty lists open sessions)")
	start := fs.Int("start", -1, "first frame (default: first frame)")
	end := fs.Int("end", -1, "last frame (default: last frame)")
	rate := fs.Float64("rate", 0, "playback rate relative to the recording (0 streams unpaced)")
	outliersOnly := fs.Bool("outliers", false, "only frames with flagged markers")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	client := visualiser.NewClient(conn)

	if *id == "" {
		list, err := client.ListSessions(ctx)
		if err != nil {
			return err
		}
		for _, s := range list {
			fmt.Fprintf(e.stdout, "%s  %-10s %d markers  %d frames @ %g fps  %d outlier flags\n",
				s.SessionID, s.Model, len(s.Markers), s.Frames, s.FPS, s.OutlierFlags)
		}
		return nil
	}

	req := visualiser.StreamRequest{SessionID: *id, Rate: *rate, OutliersOnly: *outliersOnly}
	if *start >= 0 {
		req.Start = start
	}
	if *end >= 0 {
		req.End = end
	}
	stream, err := client.StreamFrames(ctx, req)
	if err != nil {
		return err
	}
	for {
		fr, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(e.stdout, "%6d  %8.3fs  %2d markers", fr.Index, fr.Time, len(fr.Positions))
		if len(fr.Outliers) > 0 {
			fmt.Fprintf(e.stdout, "  outliers: %s", strings.Join(fr.Outliers, ","))
		}
		fmt.Fprintln(e.stdout)
	}
}

func runMigrate(_ context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	dbPath := fs.String("db", e.cfg.GetDatabasePath(), "session database")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	return db.RunMigrateCommand(e.stdout, fs.Args(), *dbPath)
}
