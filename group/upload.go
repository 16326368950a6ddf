package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupchat/event"
	"github.com/opd-ai/groupchat/message"
	"github.com/opd-ai/groupchat/transport"
)

// UploadImage makes img available in the group and returns the image
// element referencing it. The server is asked first; data is only
// transferred when it does not already hold an image with the same hash.
// img is closed on return.
func (g *Group) UploadImage(ctx context.Context, img *message.ExternalImage) (message.Image, error) {
	if img == nil {
		return message.Image{}, errors.New("upload group image: nil image")
	}
	defer func() {
		if err := img.Close(); err != nil {
			g.logger.WithFields(logrus.Fields{
				"function": "UploadImage",
				"group_id": g.id,
				"error":    err.Error(),
			}).Warn("Failed to close image source")
		}
	}()

	ctx, cancel, err := g.bind(ctx)
	if err != nil {
		return message.Image{}, err
	}
	defer cancel()

	before := event.Broadcast(ctx, g.bus, &BeforeImageUploadEvent{
		groupEvent: groupEvent{group: g},
		Image:      img,
	})
	if before.IsCancelled() {
		imageUploads.WithLabelValues("cancelled").Inc()
		return message.Image{}, ErrUploadCancelled
	}

	resourceID := img.ResourceID()
	result, err := g.transport.NegotiateGroupImage(ctx, &transport.ImageNegotiation{
		GroupID:    g.id,
		SenderID:   g.self.ID,
		MD5:        img.MD5,
		Size:       img.Size,
		Format:     img.Format,
		ResourceID: resourceID,
	})
	if err != nil {
		err = fmt.Errorf("negotiate group image: %w", err)
		g.uploadFailed(ctx, img, 0, "", err)
		return message.Image{}, err
	}

	switch r := result.(type) {
	case transport.Rejected:
		var rejectErr error
		if r.Reason == transport.ReasonOverFileSizeMax {
			rejectErr = ErrImageTooLarge
		} else {
			rejectErr = &UploadRejectedError{Code: r.Code, Reason: r.Reason}
		}
		g.uploadFailed(ctx, img, r.Code, r.Reason, rejectErr)
		return message.Image{}, rejectErr

	case transport.AlreadyPresent:
		if r.ResourceID != "" {
			resourceID = r.ResourceID
		}
		return g.uploadSucceeded(ctx, img, resourceID, "present"), nil

	case transport.MustUpload:
		if r.ResourceID != "" {
			resourceID = r.ResourceID
		}
		err := g.transport.UploadChunks(ctx, &transport.ChunkUpload{
			GroupID:    g.id,
			SenderID:   g.self.ID,
			Endpoints:  r.Endpoints,
			UploadKey:  r.UploadKey,
			ResourceID: resourceID,
			MD5:        img.MD5,
			Size:       img.Size,
			Data:       img.Reader(),
		})
		if err != nil {
			err = fmt.Errorf("upload group image: %w", err)
			g.uploadFailed(ctx, img, 0, "", err)
			return message.Image{}, err
		}
		return g.uploadSucceeded(ctx, img, resourceID, "uploaded"), nil

	default:
		err := fmt.Errorf("negotiate group image: unexpected result %T", result)
		g.uploadFailed(ctx, img, 0, "", err)
		return message.Image{}, err
	}
}

func (g *Group) uploadSucceeded(ctx context.Context, img *message.ExternalImage, resourceID, result string) message.Image {
	resource := message.Image{ID: resourceID}
	imageUploads.WithLabelValues(result).Inc()

	g.logger.WithFields(logrus.Fields{
		"function":    "UploadImage",
		"group_id":    g.id,
		"resource_id": resourceID,
		"size":        img.Size,
		"result":      result,
	}).Debug("Group image available")

	event.Broadcast(ctx, g.bus, &ImageUploadSucceedEvent{
		groupEvent: groupEvent{group: g},
		Image:      img,
		Resource:   resource,
	})
	return resource
}

func (g *Group) uploadFailed(ctx context.Context, img *message.ExternalImage, code int32, reason string, err error) {
	imageUploads.WithLabelValues("failed").Inc()

	g.logger.WithFields(logrus.Fields{
		"function": "UploadImage",
		"group_id": g.id,
		"code":     code,
		"reason":   reason,
		"error":    err.Error(),
	}).Warn("Group image upload failed")

	event.Broadcast(ctx, g.bus, &ImageUploadFailedEvent{
		groupEvent: groupEvent{group: g},
		Image:      img,
		Code:       code,
		Reason:     reason,
		Err:        err,
	})
}
