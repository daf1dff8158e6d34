package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/storage"
)

var seedFlags struct {
	spaces      int
	attachments int
	versions    int
	size        string
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate demo spaces and attachment versions",
	Long: `Generate demo spaces and attachment versions in the configured store.

Every attachment gets the requested number of versions, one day apart, the
newest modified today. When database.blob_path is set, a file of the given
size is written for every version.

Examples:
  purgectl seed --spaces 3 --attachments 20 --versions 6 --size 256KiB`,
	RunE: seed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVar(&seedFlags.spaces, "spaces", 2, "number of spaces")
	seedCmd.Flags().IntVar(&seedFlags.attachments, "attachments", 10, "attachments per space")
	seedCmd.Flags().IntVar(&seedFlags.versions, "versions", 5, "versions per attachment")
	seedCmd.Flags().StringVar(&seedFlags.size, "size", "64KiB", "size of every version")
}

// blobSaver 保存版本文件
type blobSaver interface {
	Save(spaceKey, lineageID string, version int, filename string, content []byte) (string, error)
}

// seedOptions 演示数据规模
type seedOptions struct {
	Spaces      int
	Attachments int
	Versions    int
	Size        int64
}

// seedSummary 生成结果
type seedSummary struct {
	Spaces   int
	Versions int
	Bytes    int64
}

func seed(cmd *cobra.Command, args []string) error {
	size, err := humanize.ParseBytes(seedFlags.size)
	if err != nil {
		return fmt.Errorf("invalid --size: %w", err)
	}
	opts := seedOptions{
		Spaces:      seedFlags.spaces,
		Attachments: seedFlags.attachments,
		Versions:    seedFlags.versions,
		Size:        int64(size),
	}
	if opts.Spaces <= 0 || opts.Attachments <= 0 || opts.Versions <= 0 {
		return fmt.Errorf("--spaces, --attachments and --versions must be positive")
	}

	_, st, log, err := openStorage()
	if err != nil {
		return err
	}
	defer log.Sync()
	defer st.Close()

	var blobs blobSaver
	if st.Blobs != nil {
		blobs = st.Blobs
	}

	summary, err := seedData(cmd.Context(), st.Writer, blobs, opts, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d spaces, %s versions, %s\n",
		summary.Spaces, humanize.Comma(int64(summary.Versions)), humanize.IBytes(uint64(summary.Bytes)))
	return nil
}

// seedData 写入演示数据
//
// 空间 key 为 DEMO1、DEMO2...，附件标识使用 UUID。
func seedData(ctx context.Context, w storage.ContentWriter, blobs blobSaver, opts seedOptions, now time.Time) (seedSummary, error) {
	var summary seedSummary

	for s := 1; s <= opts.Spaces; s++ {
		space := &domain.Space{
			Key:     fmt.Sprintf("DEMO%d", s),
			Name:    fmt.Sprintf("Demo Space %d", s),
			URLPath: fmt.Sprintf("/spaces/DEMO%d", s),
		}
		if err := w.SaveSpace(ctx, space); err != nil {
			return summary, fmt.Errorf("save space %s: %w", space.Key, err)
		}
		summary.Spaces++

		for a := 1; a <= opts.Attachments; a++ {
			lineage := uuid.NewString()
			title := fmt.Sprintf("report-%02d.pdf", a)

			for v := 1; v <= opts.Versions; v++ {
				modified := now.AddDate(0, 0, v-opts.Versions)
				att := &domain.Attachment{
					ID:         uuid.NewString(),
					LineageID:  lineage,
					SpaceKey:   space.Key,
					Title:      title,
					Version:    v,
					Size:       opts.Size,
					ModifiedAt: &modified,
				}
				if blobs != nil {
					content := make([]byte, opts.Size)
					_, _ = rand.Read(content)
					path, err := blobs.Save(space.Key, lineage, v, title, content)
					if err != nil {
						return summary, fmt.Errorf("save file for %s v%d: %w", title, v, err)
					}
					att.StoragePath = path
				}
				if err := w.SaveAttachment(ctx, att); err != nil {
					return summary, fmt.Errorf("save %s v%d: %w", title, v, err)
				}
				summary.Versions++
				summary.Bytes += opts.Size
			}
		}
	}
	return summary, nil
}
