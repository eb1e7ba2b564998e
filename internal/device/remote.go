package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"k8s.io/klog/v2"

	"github.com/born-ml/opgraph/internal/parallel"
)

const gcsScheme = "gs://"

// mirrorWorkers bounds concurrent object downloads.
const mirrorWorkers = 8

// IsRemote reports whether the custom path names a GCS location.
func (ic InitContext) IsRemote() bool {
	return ic.CodeLoadMode == LoadCustomPath && strings.HasPrefix(ic.CustomPath, gcsScheme)
}

// Localize returns an InitContext whose custom path is a local directory.
// A gs://bucket/prefix path is mirrored into cacheDir first; any other
// context is returned unchanged.
func Localize(ctx context.Context, ic InitContext, cacheDir string) (InitContext, error) {
	if !ic.IsRemote() {
		return ic, nil
	}
	bucket, prefix, _ := strings.Cut(strings.TrimPrefix(ic.CustomPath, gcsScheme), "/")
	if bucket == "" {
		return ic, fmt.Errorf("device: invalid code library location %q", ic.CustomPath)
	}

	sum := sha256.Sum256([]byte(ic.CustomPath))
	dest := filepath.Join(cacheDir, hex.EncodeToString(sum[:8]))
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return ic, fmt.Errorf("creating library cache directory %q: %w", dest, err)
	}

	store := &gcsLibrary{Bucket: bucket, Prefix: prefix}
	if err := store.Mirror(ctx, dest); err != nil {
		return ic, err
	}
	return InitContext{CodeLoadMode: LoadCustomPath, CustomPath: dest}, nil
}

// gcsLibrary mirrors the .wgsl objects below a bucket prefix.
type gcsLibrary struct {
	Bucket string
	Prefix string
}

func (g *gcsLibrary) Mirror(ctx context.Context, dest string) error {
	log := klog.FromContext(ctx)

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	prefix := g.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	startedAt := time.Now()
	var objects []string
	it := client.Bucket(g.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return fmt.Errorf("listing gs://%s/%s: %w", g.Bucket, prefix, err)
		}
		if path.Ext(attrs.Name) != sourceExt || strings.Contains(strings.TrimPrefix(attrs.Name, prefix), "/") {
			continue
		}
		objects = append(objects, attrs.Name)
	}

	err = parallel.For(ctx, len(objects), func(ctx context.Context, i int) error {
		return g.download(ctx, client, objects[i], filepath.Join(dest, path.Base(objects[i])))
	}, parallel.Config{Enabled: true, NumWorkers: mirrorWorkers})
	if err != nil {
		return err
	}
	count := len(objects)

	log.Info("mirrored code library from GCS", "source", gcsScheme+g.Bucket+"/"+prefix, "destination", dest, "functions", count, "duration", time.Since(startedAt))
	return nil
}

func (g *gcsLibrary) download(ctx context.Context, client *storage.Client, object, destinationPath string) error {
	gcsURL := gcsScheme + g.Bucket + "/" + object
	r, err := client.Bucket(g.Bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %s", ErrFunctionNotFound, gcsURL)
		}
		return fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	if err := saveSource(r, destinationPath); err != nil {
		return fmt.Errorf("mirroring %s: %w", gcsURL, err)
	}
	return nil
}

// saveSource stores one shader source at dst. A partial source is never
// visible under dst.
func saveSource(src io.Reader, dst string) error {
	staged, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return err
	}
	_, err = io.Copy(staged, src)
	if cerr := staged.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(staged.Name(), dst)
	}
	if err != nil {
		os.Remove(staged.Name())
		return fmt.Errorf("saving %s: %w", filepath.Base(dst), err)
	}
	return nil
}
