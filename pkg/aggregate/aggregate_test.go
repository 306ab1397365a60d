package aggregate

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/stentech/gerberstack/pkg/errors"
	"github.com/stentech/gerberstack/pkg/gerber"
	"github.com/stentech/gerberstack/pkg/layer"
)

const (
	topBody   = "G04 top copper*\n%MOMM*%\nX0Y0D02*\nM02*\n"
	pasteBody = "%FSLAX26Y26*%\n%MOMM*%\nX1Y1D03*\nM02*\n"
)

func zipItem(t *testing.T, name string, files ...string) Item {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i := 0; i+1 < len(files); i += 2 {
		w, err := zw.Create(files[i])
		if err != nil {
			t.Fatalf("create %s: %v", files[i], err)
		}
		if _, err := io.WriteString(w, files[i+1]); err != nil {
			t.Fatalf("write %s: %v", files[i], err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return BytesItem(name, buf.Bytes())
}

func newTestAggregator() *Aggregator {
	return New(layer.DefaultPolicy())
}

func disabled(names ...string) layer.ClientConfig {
	return layer.ClientConfig{}.Disable(names...)
}

func TestAggregateLooseAndArchive(t *testing.T) {
	items := []Item{
		BytesItem("top.gtl", []byte(topBody)),
		zipItem(t, "board.zip", "gerbers/b.gtp", pasteBody),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	want := layer.Manifest{
		{Name: "top.gtl", Type: layer.TypeTop},
		{Name: "b.gtp", Type: layer.TypePaste},
	}
	if len(set.Manifest) != len(want) {
		t.Fatalf("Manifest = %+v, want %+v", set.Manifest, want)
	}
	for i := range want {
		if set.Manifest[i] != want[i] {
			t.Errorf("Manifest[%d] = %+v, want %+v", i, set.Manifest[i], want[i])
		}
	}
	if got := newTestAggregator().Policy().Classify("a.gtl"); got != layer.TypeOther {
		t.Errorf("Classify(a.gtl) = %s, want other", got)
	}
	if got := set.Names(); len(got) != 2 || got[0] != "top.gtl" || got[1] != "b.gtp" {
		t.Errorf("Names() = %v, want [top.gtl b.gtp]", got)
	}
}

func TestAggregateDisabledLayerStaysInManifest(t *testing.T) {
	items := []Item{
		BytesItem("a.gtl", []byte(topBody)),
		zipItem(t, "board.zip", "b.gtp", pasteBody),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, disabled("b.gtp"))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Layers) != 1 || set.Layers[0].Name != "a.gtl" {
		t.Errorf("Layers = %v, want only a.gtl", set.Names())
	}
	for _, doc := range set.Layers {
		if strings.Contains(doc.Content, "X1Y1D03") {
			t.Error("render input contains content of the disabled layer")
		}
	}
	if !set.Manifest.Contains("b.gtp") {
		t.Error("Manifest should still list the disabled layer b.gtp")
	}
}

func TestAggregateDuplicateNameFirstWins(t *testing.T) {
	items := []Item{
		BytesItem("top.gtl", []byte("%FSLAX24Y24*%\nLOOSE*\n")),
		zipItem(t, "board.zip", "nested/top.gtl", "%FSLAX24Y24*%\nARCHIVED*\n"),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Manifest) != 1 {
		t.Errorf("Manifest has %d entries, want 1: %+v", len(set.Manifest), set.Manifest)
	}
	if len(set.Layers) != 1 {
		t.Fatalf("Layers has %d entries, want 1", len(set.Layers))
	}
	if !strings.Contains(set.Layers[0].Content, "LOOSE") {
		t.Errorf("Layers[0].Content = %q, want the first-encountered content", set.Layers[0].Content)
	}
}

func TestAggregateNoRecognizedFiles(t *testing.T) {
	items := []Item{
		zipItem(t, "docs.zip", "readme.pdf", "%PDF", "notes/", ""),
		BytesItem("photo.jpg", []byte{0xff, 0xd8}),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	var empty *EmptyLayerSetError
	if !stderrors.As(err, &empty) {
		t.Fatalf("Aggregate() error = %v, want *EmptyLayerSetError", err)
	}
	if !errors.Is(err, errors.ErrCodeEmptyLayerSet) {
		t.Errorf("errors.Is(EMPTY_LAYER_SET) = false")
	}
	if len(empty.Manifest) != 0 {
		t.Errorf("Manifest = %+v, want empty", empty.Manifest)
	}
	if set == nil || len(set.Manifest) != 0 {
		t.Errorf("returned set = %+v, want empty manifest", set)
	}
}

func TestAggregateAllDisabled(t *testing.T) {
	items := []Item{BytesItem("a.gtl", []byte(topBody))}

	_, err := newTestAggregator().Aggregate(context.Background(), items, disabled("a.gtl"))
	var empty *EmptyLayerSetError
	if !stderrors.As(err, &empty) {
		t.Fatalf("Aggregate() error = %v, want *EmptyLayerSetError", err)
	}
	if len(empty.Manifest) != 1 || empty.Manifest[0].Name != "a.gtl" {
		t.Errorf("Manifest = %+v, want [a.gtl]", empty.Manifest)
	}
	if !strings.Contains(empty.Error(), "enable at least one layer") {
		t.Errorf("Error() = %q, want guidance to enable a layer", empty.Error())
	}
}

func TestAggregateCorruptArchiveDoesNotFailBatch(t *testing.T) {
	items := []Item{
		BytesItem("broken.zip", []byte("definitely not a zip")),
		BytesItem("top.gtl", []byte(topBody)),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Layers) != 1 || set.Layers[0].Name != "top.gtl" {
		t.Errorf("Layers = %v, want [top.gtl]", set.Names())
	}
	if len(set.Warnings) != 1 || set.Warnings[0].Code != errors.ErrCodeArchiveUnreadable {
		t.Errorf("Warnings = %+v, want one ARCHIVE_UNREADABLE", set.Warnings)
	}
}

func TestAggregateUnreadableFileIsSkipped(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "upload-1")
	if err := os.WriteFile(good, []byte(topBody), 0o600); err != nil {
		t.Fatal(err)
	}
	items := []Item{
		FileItem("missing.gbl", filepath.Join(dir, "does-not-exist")),
		FileItem("top.gtl", good),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Layers) != 1 || set.Layers[0].Name != "top.gtl" {
		t.Errorf("Layers = %v, want [top.gtl]", set.Names())
	}
	if !set.Manifest.Contains("missing.gbl") {
		t.Error("unreadable but recognized file should still be in the manifest")
	}
	if len(set.Warnings) != 1 || set.Warnings[0].Code != errors.ErrCodeFileUnreadable {
		t.Errorf("Warnings = %+v, want one FILE_UNREADABLE", set.Warnings)
	}
}

func TestAggregateDuplicateFallsBackWhenFirstUnreadable(t *testing.T) {
	items := []Item{
		FileItem("top.gtl", filepath.Join(t.TempDir(), "gone")),
		zipItem(t, "board.zip", "top.gtl", "%FSLAX24Y24*%\nFROM-ZIP*\n"),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Layers) != 1 || !strings.Contains(set.Layers[0].Content, "FROM-ZIP") {
		t.Errorf("Layers = %+v, want the archive copy of top.gtl", set.Layers)
	}
	if len(set.Manifest) != 1 {
		t.Errorf("Manifest = %+v, want a single top.gtl entry", set.Manifest)
	}
}

func TestAggregateNormalizesContent(t *testing.T) {
	items := []Item{
		BytesItem("top.gtl", []byte(topBody)),
		BytesItem("paste.gtp", []byte(pasteBody)),
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if got := set.Layers[0].Content; got != gerber.DefaultFormat+"\n"+topBody {
		t.Errorf("top.gtl content = %q, want default format injected", got)
	}
	if got := set.Layers[1].Content; got != pasteBody {
		t.Errorf("paste.gtp content = %q, want unchanged", got)
	}
}

func TestAggregateDoesNotReadDisabledOrIgnoredItems(t *testing.T) {
	opened := map[string]int{}
	track := func(name, body string) Item {
		return Item{Name: name, Open: func() (io.ReadCloser, error) {
			opened[name]++
			return io.NopCloser(strings.NewReader(body)), nil
		}}
	}
	items := []Item{
		track("top.gtl", topBody),
		track("paste.gtp", pasteBody),
		track("notes.pdf", "%PDF"),
	}

	if _, err := newTestAggregator().Aggregate(context.Background(), items, disabled("paste.gtp")); err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if opened["top.gtl"] != 1 {
		t.Errorf("top.gtl opened %d times, want 1", opened["top.gtl"])
	}
	if opened["paste.gtp"] != 0 || opened["notes.pdf"] != 0 {
		t.Errorf("disabled/ignored items were opened: %v", opened)
	}
}

func TestAggregateCustomPolicy(t *testing.T) {
	policy := layer.Policy{Allowed: []string{".art"}, Archives: []string{".pkg"}, Top: []string{".art"}}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("top.art")
	_, _ = io.WriteString(w, "X")
	_ = zw.Close()

	items := []Item{
		BytesItem("bundle.pkg", buf.Bytes()),
		BytesItem("top.gtl", []byte(topBody)),
	}
	set, err := New(policy).Aggregate(context.Background(), items, layer.ClientConfig{})
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Manifest) != 1 || set.Manifest[0] != (layer.Info{Name: "top.art", Type: layer.TypeTop}) {
		t.Errorf("Manifest = %+v, want [top.art/top]", set.Manifest)
	}
}

func TestAggregateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestAggregator().Aggregate(ctx, []Item{BytesItem("top.gtl", []byte(topBody))}, layer.ClientConfig{})
	if !stderrors.Is(err, context.Canceled) {
		t.Errorf("Aggregate() error = %v, want context.Canceled", err)
	}
}

func TestDiscover(t *testing.T) {
	opened := 0
	items := []Item{
		{Name: "top.gtl", Open: func() (io.ReadCloser, error) {
			opened++
			return io.NopCloser(strings.NewReader(topBody)), nil
		}},
		zipItem(t, "board.zip", "bot.gbl", "x", "bot.gbo", "y"),
	}

	set, err := newTestAggregator().Discover(context.Background(), items)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if opened != 0 {
		t.Errorf("Discover() opened loose file %d times, want 0", opened)
	}
	if len(set.Layers) != 0 {
		t.Errorf("Discover() produced %d layers, want none", len(set.Layers))
	}
	want := []layer.Info{
		{Name: "top.gtl", Type: layer.TypeTop},
		{Name: "bot.gbl", Type: layer.TypeBottom},
		{Name: "bot.gbo", Type: layer.TypeBottom},
	}
	for i, w := range want {
		if set.Manifest[i] != w {
			t.Errorf("Manifest[%d] = %+v, want %+v", i, set.Manifest[i], w)
		}
	}

	_, err = newTestAggregator().Discover(context.Background(), []Item{BytesItem("x.pdf", nil)})
	if !errors.Is(err, errors.ErrCodeEmptyLayerSet) {
		t.Errorf("Discover() on nothing = %v, want EMPTY_LAYER_SET", err)
	}
}

// End-to-end aggregation for the documented example batch: a top copper
// layer without a format declaration plus a disabled paste layer.
func TestAggregateDocumentedExample(t *testing.T) {
	items := []Item{
		BytesItem("top.gtl", []byte(topBody)),
		BytesItem("paste.gtp", []byte(pasteBody)),
	}
	cfg, err := layer.ParseClientConfig([]byte(`{"layers":[{"name":"paste.gtp","enabled":false}],"pasteColor":"#ff0000"}`))
	if err != nil {
		t.Fatalf("ParseClientConfig() error = %v", err)
	}

	set, err := newTestAggregator().Aggregate(context.Background(), items, cfg)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(set.Layers) != 1 || set.Layers[0].Name != "top.gtl" {
		t.Fatalf("Layers = %v, want [top.gtl]", set.Names())
	}
	if !gerber.HasFormat(set.Layers[0].Content) {
		t.Error("top.gtl was not normalized")
	}
	if set.Manifest[0] != (layer.Info{Name: "top.gtl", Type: layer.TypeTop}) ||
		set.Manifest[1] != (layer.Info{Name: "paste.gtp", Type: layer.TypePaste}) {
		t.Errorf("Manifest = %+v", set.Manifest)
	}
}
