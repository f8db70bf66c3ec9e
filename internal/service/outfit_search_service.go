package service

import (
	"context"
	"errors"
	"time"

	"go-style-scout/internal/detection"
	"go-style-scout/internal/embedding"
	apperrors "go-style-scout/internal/errors"
	"go-style-scout/internal/imaging"
	"go-style-scout/internal/logger"
	"go-style-scout/internal/observer"
	"go-style-scout/internal/repository"
	"go-style-scout/internal/search"
	"go-style-scout/internal/storage"
	"go-style-scout/pkg/models"

	"github.com/sirupsen/logrus"
)

// OutfitSearchService finds catalog products resembling the clothing in a photo.
type OutfitSearchService interface {
	// FindSimilar runs the pipeline on uploaded image bytes.
	FindSimilar(ctx context.Context, raw []byte) (*models.SearchOutcome, error)

	// FindSimilarFromURL fetches the image first.
	FindSimilarFromURL(ctx context.Context, imageURL string) (*models.SearchOutcome, error)

	// ValidateImageURL checks a URL before any work is done.
	ValidateImageURL(imageURL string) error
}

// Options are the pipeline constants.
type Options struct {
	RelevantLabels     []string
	DetectionThreshold float64
	MatchThreshold     float64
	MatchCount         int
	SearchTimeout      time.Duration
}

// Capabilities are the external collaborators the pipeline drives.
type Capabilities struct {
	Decoder  *imaging.Decoder
	Detector detection.Detector
	Embedder embedding.Embedder
	Searcher search.Searcher
}

type outfitSearchService struct {
	imageRepo repository.ImageRepository
	caps      Capabilities
	labels    detection.LabelSet
	opts      Options
	events    observer.Subject
}

// NewOutfitSearchService creates the service. imageRepo may be nil when the
// URL endpoint is not served.
func NewOutfitSearchService(
	imageRepo repository.ImageRepository,
	caps Capabilities,
	opts Options,
	events observer.Subject,
) OutfitSearchService {
	if caps.Decoder == nil {
		caps.Decoder = imaging.NewDecoder(imaging.DefaultMaxPixels)
	}
	if events == nil {
		events = observer.NewSyncEventPublisher()
	}
	return &outfitSearchService{
		imageRepo: imageRepo,
		caps:      caps,
		labels:    detection.NewLabelSet(opts.RelevantLabels),
		opts:      opts,
		events:    events,
	}
}

// FindSimilar runs the pipeline on uploaded image bytes.
func (s *outfitSearchService) FindSimilar(ctx context.Context, raw []byte) (*models.SearchOutcome, error) {
	start := time.Now()
	s.publish(ctx, observer.PipelineEvent{
		EventType: observer.RequestStarted,
		Metadata:  map[string]interface{}{"bytes": len(raw)},
	})

	outcome, err := s.run(ctx, raw)
	if err != nil {
		s.publish(ctx, observer.PipelineEvent{
			EventType:      observer.RequestFailed,
			ProcessingTime: time.Since(start),
			ErrorMessage:   err.Error(),
		})
		return nil, err
	}

	outcome.ProcessingTimeSec = time.Since(start).Seconds()
	s.publish(ctx, observer.PipelineEvent{
		EventType:      observer.RequestCompleted,
		ProcessingTime: time.Since(start),
		Metadata: map[string]interface{}{
			"categories":       outcome.Results.Len(),
			"regions_detected": outcome.RegionsDetected,
			"regions_searched": outcome.RegionsSearched,
			"search_failures":  outcome.SearchFailures,
		},
	})
	return outcome, nil
}

// FindSimilarFromURL fetches the image at imageURL and runs the pipeline.
func (s *outfitSearchService) FindSimilarFromURL(ctx context.Context, imageURL string) (*models.SearchOutcome, error) {
	if err := s.ValidateImageURL(imageURL); err != nil {
		if _, ok := apperrors.As(err); ok {
			return nil, err
		}
		return nil, apperrors.NewValidationError("invalid image URL", err)
	}

	raw, err := s.imageRepo.FetchImage(ctx, imageURL)
	if err != nil {
		s.publish(ctx, observer.PipelineEvent{
			EventType:    observer.ImageFetchFailed,
			ErrorMessage: err.Error(),
			Metadata:     map[string]interface{}{"image_url": imageURL},
		})
		return nil, classifyFetchError(err)
	}
	s.publish(ctx, observer.PipelineEvent{
		EventType: observer.ImageFetched,
		Metadata:  map[string]interface{}{"image_url": imageURL, "bytes": len(raw)},
	})

	return s.FindSimilar(ctx, raw)
}

// ValidateImageURL validates the image URL
func (s *outfitSearchService) ValidateImageURL(imageURL string) error {
	if s.imageRepo == nil {
		return apperrors.NewUnavailableError("URL image source is not configured", repository.ErrRepositoryUnavailable)
	}
	return s.imageRepo.ValidateImageURL(imageURL)
}

func classifyFetchError(err error) error {
	switch {
	case errors.Is(err, storage.ErrImageTooLarge):
		return apperrors.NewValidationError("Remote image is too large.", err)
	case errors.Is(err, storage.ErrHostNotAllowed):
		return apperrors.NewValidationError("URL host not allowed", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("timed out fetching image", err)
	default:
		return apperrors.NewNetworkError("failed to fetch image", err)
	}
}

func (s *outfitSearchService) publish(ctx context.Context, event observer.PipelineEvent) {
	event.RequestID = logger.RequestID(ctx)
	s.events.NotifyObservers(ctx, event)
}

func (s *outfitSearchService) log(ctx context.Context) *logrus.Entry {
	return logger.FromContext(ctx)
}
