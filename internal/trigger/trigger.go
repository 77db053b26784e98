// Package trigger implements the Mesh's C9 Trigger/Mapper: a
// confidence-gated join of an intent's brand and style property bags
// into theme tokens and Tailwind classes, grounded on
// original_source's mapper.py (_merge_properties_to_tokens,
// _generate_tailwind_classes) and schemas.py's ThemeTokens.update/
// to_tailwind_classes, run in-process against intents off the bus
// rather than the original's HTTP call-out to a separate service.
package trigger

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rapidaai/mesh/internal/bus"
	"github.com/rapidaai/mesh/internal/commons"
	"github.com/rapidaai/mesh/internal/envelope"
	"github.com/rapidaai/mesh/internal/mappings"
)

// Service subscribes to intents and emits a DesignSpec for every intent
// whose confidence clears the configured threshold.
type Service struct {
	busClient           bus.Client
	mappingsLoader      *mappings.Loader
	confidenceThreshold float64
	logger              commons.Logger
}

// New builds a trigger Service.
func New(busClient bus.Client, mappingsLoader *mappings.Loader, confidenceThreshold float64, logger commons.Logger) *Service {
	return &Service{
		busClient:           busClient,
		mappingsLoader:      mappingsLoader,
		confidenceThreshold: confidenceThreshold,
		logger:              logger,
	}
}

// Run subscribes to the intents channel and blocks until ctx is
// cancelled.
func (s *Service) Run(ctx context.Context) {
	s.busClient.Subscribe(ctx, []string{string(envelope.ChannelIntents)}, func(channel string, payload []byte) {
		s.handleIntent(ctx, payload)
	})
}

func (s *Service) handleIntent(ctx context.Context, payload []byte) {
	var intent envelope.IntentRecord
	if err := json.Unmarshal(payload, &intent); err != nil {
		s.logger.Warnf("trigger: malformed intent payload: %v", err)
		return
	}

	if intent.Confidence < s.confidenceThreshold {
		s.logger.Infof("trigger: dropping intent for %s below confidence threshold (%.2f < %.2f)",
			intent.UtteranceID, intent.Confidence, s.confidenceThreshold)
		return
	}

	tokens, _, _, _ := s.Map(intent.Styles, intent.BrandRefs, intent.Component)

	spec := envelope.DesignSpec{
		Kind:        envelope.KindDesignSpec,
		SpecID:      uuid.NewString(),
		Component:   intent.Component,
		ThemeTokens: tokens,
		SourceUtts:  []string{intent.UtteranceID},
		CreatedAt:   time.Now(),
	}
	if interaction, ok := tokens["interaction"]; ok {
		spec.Interaction = &interaction
	}

	out, err := json.Marshal(spec)
	if err != nil {
		s.logger.Warnf("trigger: failed to marshal design spec for %s: %v", intent.UtteranceID, err)
		return
	}
	if err := s.busClient.Publish(ctx, string(envelope.ChannelDesignSpecs), out); err != nil {
		s.logger.Warnf("trigger: publish failed for %s: %v", intent.UtteranceID, err)
		return
	}
	s.logger.Infof("trigger: published design spec %s for utterance %s", spec.SpecID, intent.UtteranceID)
}

// Map performs the §4.9 join + token→class steps: brand properties
// merge first (in list order), then style properties (in list order,
// overriding brand), then the component-qualified style key
// "<component>_<style>" if present — each step's properties override
// the previous, mirroring ThemeTokens.update's precedence. It also
// backs the `/v1/map` design-mapper collaborator REST endpoint, which
// additionally wants the subset of styles/brands actually found in
// the mappings dictionary.
func (s *Service) Map(styles, brandRefs []string, component string) (tokens map[string]string, classes, usedBrands, usedStyles []string) {
	merged := map[string]interface{}{}

	for _, brandRef := range brandRefs {
		props := s.mappingsLoader.BrandProperties(brandRef)
		if props == nil {
			s.logger.Warnf("trigger: brand reference not found in mappings: %s", brandRef)
			continue
		}
		mergeInto(merged, props)
		usedBrands = append(usedBrands, brandRef)
	}

	for _, style := range styles {
		props := s.mappingsLoader.StyleProperties(style)
		if props == nil {
			s.logger.Warnf("trigger: style not found in mappings: %s", style)
		} else {
			mergeInto(merged, props)
			usedStyles = append(usedStyles, style)
		}

		if component != "" {
			compKey := component + "_" + style
			if compProps := s.mappingsLoader.StyleProperties(compKey); compProps != nil {
				mergeInto(merged, compProps)
				usedStyles = append(usedStyles, compKey)
			}
		}
	}

	tokens, classes = s.toThemeTokensAndClasses(merged)
	return tokens, classes, usedBrands, usedStyles
}

func mergeInto(dst map[string]interface{}, src map[string]interface{}) {
	for k, v := range src {
		dst[k] = v
	}
}

// toThemeTokensAndClasses converts a merged property bag into the
// string-valued ThemeTokens map plus a deduplicated, first-seen-order
// list of Tailwind classes, per §4.9 step 2's token→class rules.
func (s *Service) toThemeTokensAndClasses(merged map[string]interface{}) (map[string]string, []string) {
	tokens := make(map[string]string, len(merged))
	var classes []string
	seen := make(map[string]bool)

	addClass := func(cls string) {
		if cls == "" || seen[cls] {
			return
		}
		seen[cls] = true
		classes = append(classes, cls)
	}

	for field, value := range merged {
		strValue, isString := value.(string)
		if !isString {
			continue
		}
		tokens[field] = strValue

		if cls, ok := s.mappingsLoader.TailwindClass(strValue); ok {
			addClass(cls)
			continue
		}

		switch {
		case field == "border_radius":
			addClass("rounded-" + strValue)
		case strings.HasPrefix(field, "padding"):
			addClass(strValue)
		case field == "interaction":
			for _, cls := range strings.Fields(strValue) {
				addClass(cls)
			}
		}
	}

	return tokens, classes
}
