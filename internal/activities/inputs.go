package activities

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"qaforge/internal/extract"
	"qaforge/internal/qa"
	"qaforge/internal/util"
)

func readStoredFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stored file: %w", err)
	}
	return b, nil
}

// ExtractFilesActivity reads every stored file and extracts its text. An
// unsupported content type fails the job without retries.
func (a *Activities) ExtractFilesActivity(ctx context.Context, in ExtractFilesInput) (ExtractFilesOutput, error) {
	payloads := make([]FilePayload, 0, len(in.Files))
	for _, f := range in.Files {
		if err := ctx.Err(); err != nil {
			return ExtractFilesOutput{}, err
		}
		content, err := a.readFile(f.StoragePath)
		if err != nil {
			return ExtractFilesOutput{}, err
		}
		text, err := extract.Text(f.MimeType, content, a.logger.With(zap.String("file", f.OriginalFilename)))
		if errors.Is(err, util.ErrUnsupportedType) {
			return ExtractFilesOutput{}, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("%s: %v", f.OriginalFilename, err), "UnsupportedContentType", err)
		}
		if err != nil {
			return ExtractFilesOutput{}, fmt.Errorf("extract %s: %w", f.OriginalFilename, err)
		}
		payloads = append(payloads, FilePayload{FileID: f.FileID, FileName: f.OriginalFilename, Text: text})
	}
	return ExtractFilesOutput{Payloads: payloads}, nil
}

func (a *Activities) ChunkFilesActivity(ctx context.Context, in ChunkFilesInput) (ChunkFilesOutput, error) {
	_ = ctx
	return ChunkFilesOutput{Files: BuildFileInputs(in.TopicID, in.Payloads, a.cfg.ChunkMaxWords, a.cfg.ChunkOverlapWords)}, nil
}

// BuildFileInputs chunks each payload into pipeline input. Payloads without
// any words are left out. Input ids are "{topicID}:{filename}"; a repeated
// filename gets the stored file id, or its position, appended so ids stay
// unique within the run.
func BuildFileInputs(topicID string, payloads []FilePayload, maxWords, overlap int) []qa.FileInput {
	out := make([]qa.FileInput, 0, len(payloads))
	seen := make(map[string]bool, len(payloads))
	for n, p := range payloads {
		parts := util.ChunkWords(p.Text, maxWords, overlap)
		if len(parts) == 0 {
			continue
		}
		chunks := make([]qa.Chunk, 0, len(parts))
		for i, text := range parts {
			chunks = append(chunks, qa.Chunk{Text: text, Source: p.FileName, Index: i})
		}
		id := topicID + ":" + p.FileName
		if seen[id] {
			suffix := p.FileID
			if suffix == "" {
				suffix = strconv.Itoa(n + 1)
			}
			id += "#" + suffix
			for seen[id] {
				id += "_"
			}
		}
		seen[id] = true
		out = append(out, qa.FileInput{
			FileID:   id,
			FileName: p.FileName,
			Chunks:   chunks,
		})
	}
	return out
}
