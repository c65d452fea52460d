package analyzer

import (
	"context"
	"fmt"
	"slices"

	"github.com/hupe1980/spikego/blobstore"
	"github.com/hupe1980/spikego/codec"
	"github.com/hupe1980/spikego/core"
	"github.com/hupe1980/spikego/internal/blockio"
)

const manifestName = "analyzer.json"

// manifest is the saved analyzer's folder index. Recording traces and
// spike trains are not persisted: Load re-attaches them and the manifest
// checks they are the same data the analyzer was computed on.
type manifest struct {
	SamplingFrequency float64  `json:"sampling_frequency"`
	ChannelIDs        []string `json:"channel_ids"`
	UnitIDs           []string `json:"unit_ids"`
	Extensions        []string `json:"extensions"`
}

// DataCodec is an optional Extension interface for typed persistence.
// Extensions that implement it control their data encoding and get their
// concrete data types back on Load; others round-trip through the codec's
// generic representation.
type DataCodec interface {
	EncodeData(c codec.Codec) ([]byte, error)
	DecodeData(c codec.Codec, data []byte) error
}

func paramsBlob(name string) string { return "extensions/" + name + "/params.json" }
func dataBlob(name string) string   { return "extensions/" + name + "/data.zst" }

// Save writes the analyzer's manifest and every computed extension to the
// store: params as JSON, data as a zstd-compressed block.
func (a *SortingAnalyzer) Save(ctx context.Context, store blobstore.BlobStore) error {
	m := manifest{
		SamplingFrequency: a.recording.SamplingFrequency(),
		ChannelIDs:        a.recording.ChannelIDs(),
		UnitIDs:           a.sorting.UnitIDs(),
		Extensions:        a.ExtensionNames(),
	}
	raw, err := codec.Default.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := store.Put(ctx, manifestName, raw); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	for _, name := range m.Extensions {
		ext, _ := a.Extension(name)
		if err := saveExtension(ctx, store, ext); err != nil {
			return fmt.Errorf("save extension %q: %w", name, err)
		}
	}

	return nil
}

func saveExtension(ctx context.Context, store blobstore.BlobStore, ext Extension) error {
	params, err := codec.Default.Marshal(ext.Params())
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := store.Put(ctx, paramsBlob(ext.Name()), params); err != nil {
		return err
	}

	var data []byte
	if dc, ok := ext.(DataCodec); ok {
		data, err = dc.EncodeData(codec.Default)
	} else {
		data, err = codec.Default.Marshal(ext.Data())
	}
	if err != nil {
		return fmt.Errorf("encode data: %w", err)
	}
	block, err := blockio.Compress(data, blockio.CompressionZSTD)
	if err != nil {
		return fmt.Errorf("compress data: %w", err)
	}

	return store.Put(ctx, dataBlob(ext.Name()), block)
}

// Load reads a saved analyzer folder and re-attaches it to the recording
// and sorting it was computed on. Extensions registered with a DataCodec
// implementation are restored with their concrete data types; unknown
// extension names fail with ErrUnknownExtension.
func Load(ctx context.Context, store blobstore.BlobStore, recording core.Recording, sorting core.Sorting, opts ...Option) (*SortingAnalyzer, error) {
	raw, err := blobstore.ReadAll(ctx, store, manifestName)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest
	if err := codec.Default.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	a, err := New(recording, sorting, opts...)
	if err != nil {
		return nil, err
	}
	if m.SamplingFrequency != recording.SamplingFrequency() {
		return nil, fmt.Errorf("saved at %g Hz, recording is %g Hz", m.SamplingFrequency, recording.SamplingFrequency())
	}
	if !slices.Equal(m.ChannelIDs, recording.ChannelIDs()) {
		return nil, fmt.Errorf("saved channel ids do not match the recording")
	}
	if !slices.Equal(m.UnitIDs, sorting.UnitIDs()) {
		return nil, fmt.Errorf("saved unit ids do not match the sorting")
	}

	for _, name := range m.Extensions {
		ext, err := loadExtension(ctx, store, a, name)
		if err != nil {
			return nil, fmt.Errorf("load extension %q: %w", name, err)
		}
		a.SetExtension(ext)
	}

	return a, nil
}

func loadExtension(ctx context.Context, store blobstore.BlobStore, a *SortingAnalyzer, name string) (Extension, error) {
	ext, err := a.registry.Create(name, a)
	if err != nil {
		return nil, err
	}

	raw, err := blobstore.ReadAll(ctx, store, paramsBlob(name))
	if err != nil {
		return nil, fmt.Errorf("read params: %w", err)
	}
	var params any
	if err := codec.Default.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	if err := ext.SetParams(params); err != nil {
		return nil, err
	}

	block, err := blobstore.ReadAll(ctx, store, dataBlob(name))
	if err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	data, err := blockio.Decompress(block, blockio.CompressionZSTD)
	if err != nil {
		return nil, fmt.Errorf("decompress data: %w", err)
	}

	dc, ok := ext.(DataCodec)
	if !ok {
		return nil, fmt.Errorf("extension %q does not support loading", name)
	}
	if err := dc.DecodeData(codec.Default, data); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}

	return ext, nil
}
