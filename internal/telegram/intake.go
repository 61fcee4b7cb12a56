package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/shared/metrics"
	"fleetdocs-backend/internal/shared/telemetry"
	"fleetdocs-backend/internal/shared/util"
)

// Bot is the part of the Bot API the intake needs.
type Bot interface {
	GetFile(ctx context.Context, fileID string) (File, error)
	Download(ctx context.Context, filePath string, limit int64) ([]byte, error)
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
}

// Submitter creates documents; documents.Service satisfies it.
type Submitter interface {
	Submit(ctx context.Context, in documents.SubmitInput) (documents.Document, error)
}

// Intake turns chat messages carrying an image into submitted documents.
type Intake struct {
	Docs     Submitter
	Bot      Bot
	Dedup    Deduper
	MaxBytes int64
	Mode     documents.Mode
}

// HandleUpdate processes one update. Duplicate update ids are acknowledged and dropped.
func (in *Intake) HandleUpdate(ctx context.Context, upd Update) error {
	if in.Dedup != nil {
		first, err := in.Dedup.MarkSeen(ctx, upd.UpdateID)
		if err != nil {
			// Processing is idempotent per document, so a dedup outage only costs a duplicate.
			telemetry.Warn("telegram.dedup_failed", map[string]any{
				"update_id": upd.UpdateID,
				"error":     err.Error(),
			})
		} else if !first {
			metrics.IncTelegramDuplicateUpdate()
			telemetry.Info("telegram.duplicate_update", map[string]any{"update_id": upd.UpdateID})
			return nil
		}
	}

	msg := upd.Message
	if msg == nil {
		return nil
	}
	fileID, fileName, size := pickFile(msg)
	if fileID == "" {
		return in.reply(ctx, msg, "Send a photo of the document. Add #type and @plate in the caption if you know them.")
	}
	if in.MaxBytes > 0 && size > in.MaxBytes {
		return in.reply(ctx, msg, "That file is too large to process.")
	}

	f, err := in.Bot.GetFile(ctx, fileID)
	if err != nil {
		return in.fetchFailed(ctx, upd, fmt.Errorf("get file: %w", err))
	}
	image, err := in.Bot.Download(ctx, f.FilePath, in.MaxBytes)
	if err != nil {
		return in.fetchFailed(ctx, upd, fmt.Errorf("download file: %w", err))
	}

	caption := ParseCaption(msg.Caption)
	doc, err := in.Docs.Submit(ctx, documents.SubmitInput{
		Image:      image,
		FileName:   fileName,
		TypeHint:   string(caption.Type),
		VehicleRef: caption.VehicleRef,
		Source:     documents.SourceTelegram,
		Mode:       in.Mode,
	})
	if err != nil {
		telemetry.Warn("telegram.submit_failed", map[string]any{
			"update_id": upd.UpdateID,
			"chat":      chatKey(msg.Chat.ID),
			"error":     err.Error(),
		})
		return in.reply(ctx, msg, submitErrorText(err))
	}
	telemetry.Info("telegram.submitted", map[string]any{
		"update_id":   upd.UpdateID,
		"chat":        chatKey(msg.Chat.ID),
		"document_id": doc.ID,
		"status":      string(doc.Status),
	})
	return in.reply(ctx, msg, summaryText(doc))
}

// fetchFailed tells the chat the file never arrived. The update is already marked seen,
// so Telegram will not deliver it again.
func (in *Intake) fetchFailed(ctx context.Context, upd Update, err error) error {
	telemetry.Warn("telegram.fetch_failed", map[string]any{
		"update_id": upd.UpdateID,
		"chat":      chatKey(upd.Message.Chat.ID),
		"error":     err.Error(),
	})
	replyErr := in.reply(ctx, upd.Message, "The file could not be downloaded from Telegram. Please send it again.")
	return errors.Join(err, replyErr)
}

func (in *Intake) reply(ctx context.Context, msg *Message, text string) error {
	if in.Bot == nil {
		return nil
	}
	if err := in.Bot.SendMessage(ctx, msg.Chat.ID, text, msg.MessageID); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

// pickFile prefers the largest photo size, then an image sent as a document.
func pickFile(msg *Message) (fileID, fileName string, size int64) {
	if len(msg.Photo) > 0 {
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID, "photo.jpg", best.FileSize
	}
	if d := msg.Document; d != nil && d.FileID != "" {
		return d.FileID, d.FileName, d.FileSize
	}
	return "", "", 0
}

func submitErrorText(err error) string {
	switch {
	case errors.Is(err, documents.ErrUnsupportedMedia):
		return "Only photos are supported (JPEG, PNG, WEBP or GIF). PDFs cannot be processed."
	case errors.Is(err, documents.ErrTooLarge):
		return "That file is too large to process."
	case errors.Is(err, documents.ErrInvalidInput):
		return "The image could not be read. Please send it again."
	default:
		return "Something went wrong while saving the document. Please try again later."
	}
}

func summaryText(doc documents.Document) string {
	switch doc.Status {
	case documents.StatusDone:
		var b strings.Builder
		fmt.Fprintf(&b, "Document %s processed as %s.", doc.ID, doc.Type)
		if doc.VehicleRef != "" {
			fmt.Fprintf(&b, "\nVehicle: %s", doc.VehicleRef)
		}
		keys := make([]string, 0, len(doc.ExtractedFields))
		for k := range doc.ExtractedFields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "\n%s: %v", k, doc.ExtractedFields[k])
		}
		return b.String()
	case documents.StatusError:
		return fmt.Sprintf("Document %s could not be processed (%s). You can reprocess it from the panel.", doc.ID, doc.ErrorCode)
	default:
		return fmt.Sprintf("Document %s received. It will be processed shortly.", doc.ID)
	}
}

// chatKey identifies a chat in logs without writing the raw id.
func chatKey(chatID int64) string {
	return util.ShortHash("telegram:" + strconv.FormatInt(chatID, 10))
}
