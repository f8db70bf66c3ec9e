package service

import (
	"context"
	"errors"

	"go-style-scout/internal/detection"
	apperrors "go-style-scout/internal/errors"
	"go-style-scout/internal/imaging"
	"go-style-scout/internal/observer"
	"go-style-scout/internal/search"
	"go-style-scout/pkg/models"

	"github.com/sirupsen/logrus"
)

// Reasons a detected region produces no search.
const (
	skipNotRelevant    = "label not allowlisted"
	skipLowConfidence  = "below detection threshold"
	skipAlreadyMatched = "category already matched"
	skipEmptyCrop      = "empty crop"
	skipEmbedFailed    = "embedding failed"
)

// run decodes once, detects once, then walks the regions in detector order.
// Regions are handled one at a time; a failed embedding or search only loses
// that region.
func (s *outfitSearchService) run(ctx context.Context, raw []byte) (*models.SearchOutcome, error) {
	img, err := s.caps.Decoder.Decode(raw)
	if err != nil {
		return nil, err
	}
	s.log(ctx).WithFields(logrus.Fields{
		"width":  img.Width,
		"height": img.Height,
		"format": img.Format,
	}).Info("Image decoded")

	regions, err := s.caps.Detector.Detect(ctx, img)
	if err != nil {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apperrors.NewInternalError("object detection failed", err)
	}
	s.log(ctx).WithField("detections", len(regions)).Info("Objects detected")

	outcome := &models.SearchOutcome{
		Results:         models.NewCategoryResults(),
		RegionsDetected: len(regions),
	}

	for i, region := range regions {
		if ctxErr := contextError(ctx); ctxErr != nil {
			return nil, ctxErr
		}

		if reason := s.skipReason(region, outcome.Results); reason != "" {
			s.skip(ctx, i, region, reason)
			continue
		}

		candidates, err := s.searchRegion(ctx, img, region)
		if err != nil {
			if ctxErr := contextError(ctx); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, imaging.ErrEmptyRegion) {
				s.skip(ctx, i, region, skipEmptyCrop)
				continue
			}
			if apperrors.IsType(err, apperrors.ErrorTypeEmbedding) {
				s.skip(ctx, i, region, skipEmbedFailed)
				s.log(ctx).WithError(err).WithField("label", region.Label).Error("Embedding failed, skipping region")
				continue
			}
			outcome.RegionsSearched++
			outcome.SearchFailures++
			s.publish(ctx, observer.PipelineEvent{
				EventType:    observer.SearchFailed,
				Label:        region.Label,
				ErrorMessage: err.Error(),
				Metadata:     map[string]interface{}{"region": i},
			})
			continue
		}
		outcome.RegionsSearched++

		if len(candidates) == 0 {
			s.log(ctx).WithField("label", region.Label).Debug("No catalog products above match threshold")
			continue
		}
		if outcome.Results.InsertIfAbsent(region.Label, candidates) {
			s.publish(ctx, observer.PipelineEvent{
				EventType: observer.RegionMatched,
				Label:     region.Label,
				Metadata:  map[string]interface{}{"region": i, "matches": len(candidates)},
			})
		}
	}

	if outcome.NoMatches() {
		s.log(ctx).Info("No relevant clothing items were detected or matched.")
	}
	return outcome, nil
}

// skipReason reports why region must not be searched, or "" if it should be.
// A label that already holds results is skipped as well; its results could
// never replace the first ones.
func (s *outfitSearchService) skipReason(region detection.Region, results *models.CategoryResults) string {
	switch {
	case !s.labels.Contains(region.Label):
		return skipNotRelevant
	case region.Confidence < s.opts.DetectionThreshold:
		return skipLowConfidence
	case results.Has(region.Label):
		return skipAlreadyMatched
	}
	return ""
}

func (s *outfitSearchService) skip(ctx context.Context, index int, region detection.Region, reason string) {
	s.publish(ctx, observer.PipelineEvent{
		EventType: observer.RegionSkipped,
		Label:     region.Label,
		Metadata: map[string]interface{}{
			"region":     index,
			"reason":     reason,
			"confidence": region.Confidence,
		},
	})
}

// searchRegion crops, embeds and queries for one region.
func (s *outfitSearchService) searchRegion(ctx context.Context, img *imaging.DecodedImage, region detection.Region) ([]models.MatchCandidate, error) {
	crop, abs, err := imaging.Crop(img, region.Box)
	if err != nil {
		return nil, err
	}

	vector, err := s.caps.Embedder.Embed(ctx, crop)
	if err != nil {
		return nil, apperrors.NewEmbeddingError(region.Label, err)
	}

	s.log(ctx).WithFields(logrus.Fields{
		"label": region.Label,
		"box":   abs,
	}).Info("Searching for similar items")

	searchCtx := ctx
	if s.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		searchCtx, cancel = context.WithTimeout(ctx, s.opts.SearchTimeout)
		defer cancel()
	}

	candidates, err := s.caps.Searcher.Search(searchCtx, vector, s.opts.MatchThreshold, s.opts.MatchCount)
	if err != nil {
		return nil, apperrors.NewSearchError(region.Label, err)
	}
	candidates = search.Rank(candidates, s.opts.MatchThreshold, s.opts.MatchCount)

	s.log(ctx).WithFields(logrus.Fields{
		"label":   region.Label,
		"matches": len(candidates),
	}).Info("Similarity search finished")
	return candidates, nil
}

// contextError maps a finished request context to an AppError.
func contextError(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("request timed out", err)
	default:
		return apperrors.NewInternalError("request cancelled", err)
	}
}
