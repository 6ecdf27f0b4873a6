package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kmobs/zmk-softdevice-controller/pkg/domain"
	"github.com/kmobs/zmk-softdevice-controller/pkg/errors"
)

// ValidateSubrateParams checks one parameter set against the subrating
// feasibility constraints. The checks mirror the firmware's build-time
// assertions; a set that fails here must never reach a link.
func ValidateSubrateParams(p domain.SubrateParams) error {
	if p.SubrateMax < p.SubrateMin {
		return errors.NewValidationError(
			fmt.Sprintf("subrate_max (%d) must be >= subrate_min (%d)", p.SubrateMax, p.SubrateMin), nil)
	}

	// two uint16 operands can reach 2^32, past a 32-bit int
	effective := int64(p.SubrateMax) * (int64(p.MaxLatency) + 1)
	if effective > domain.MaxEffectiveFactor {
		return errors.NewValidationError(
			fmt.Sprintf("subrate_max * (max_latency + 1) = %d exceeds %d", effective, domain.MaxEffectiveFactor), nil)
	}

	if p.ContinuationNumber >= p.SubrateMax {
		return errors.NewValidationError(
			fmt.Sprintf("continuation_number (%d) must be < subrate_max (%d)", p.ContinuationNumber, p.SubrateMax), nil)
	}

	if int64(p.SupervisionTimeout)*2 <= 3*effective {
		return errors.NewValidationError(
			fmt.Sprintf("supervision_timeout (%d) too low for effective factor %d", p.SupervisionTimeout, effective), nil)
	}

	return nil
}

// ValidateTierTable gates the whole table before the controller may start.
func ValidateTierTable(table domain.TierTable) error {
	if table.Active.MaxLatency != 0 {
		return errors.NewValidationError("active tier max_latency must be 0", nil)
	}

	tiers := []struct {
		name   string
		params domain.SubrateParams
	}{
		{domain.TierActive.String(), table.Active},
		{domain.TierIdle.String(), table.Idle},
		{domain.TierDormant.String(), table.Dormant},
	}

	for _, tier := range tiers {
		if err := ValidateSubrateParams(tier.params); err != nil {
			return errors.NewValidationError(fmt.Sprintf("%s tier infeasible", tier.name), err)
		}
	}

	return nil
}

// ValidateActivityMessage checks the raw activity payload before parsing.
func ValidateActivityMessage(payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("empty payload")
	}

	if len(payload) > domain.MaxActivityPayload {
		return fmt.Errorf("payload too large: %d bytes", len(payload))
	}

	if !isLikelyJSON(payload) {
		return fmt.Errorf("not JSON format")
	}

	var data map[string]interface{}
	if err := json.Unmarshal(payload, &data); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if _, ok := data["state"]; !ok {
		return fmt.Errorf("missing 'state' field")
	}

	return nil
}

func isLikelyJSON(payload []byte) bool {
	start := 0
	for start < len(payload) && (payload[start] == ' ' || payload[start] == '\t' || payload[start] == '\n' || payload[start] == '\r') {
		start++
	}

	if start >= len(payload) {
		return false
	}

	return payload[start] == '{' || payload[start] == '['
}

func ValidateTopicName(topic string) error {
	if len(topic) == 0 {
		return fmt.Errorf("empty topic")
	}

	if len(topic) > domain.MaxTopicLength {
		return fmt.Errorf("topic too long: %d chars", len(topic))
	}

	if strings.Contains(topic, "\x00") {
		return fmt.Errorf("topic contains null byte")
	}

	return nil
}

func ValidateSocketPath(path string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty socket path")
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("socket path contains null byte")
	}

	return nil
}

// SanitizeString strips a peer-provided string down to printable ASCII.
func SanitizeString(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= 32 && r < 127 {
			result.WriteRune(r)
		}
	}

	sanitized := result.String()
	if len(sanitized) > domain.MaxPeerNameLength {
		sanitized = sanitized[:domain.MaxPeerNameLength]
	}

	return sanitized
}

// MatchesMQTTPattern reports whether topic matches an MQTT subscription
// pattern with + and # wildcards. An empty pattern matches everything.
func MatchesMQTTPattern(topic, pattern string) bool {
	if pattern == "" {
		return true
	}

	return matchMQTTPattern(topic, pattern)
}

func matchMQTTPattern(topic, pattern string) bool {
	if pattern == "#" || (pattern == "" && topic == "") {
		return true
	}

	if pattern == "" || topic == "" {
		return false
	}

	patternSlash := strings.Index(pattern, "/")
	topicSlash := strings.Index(topic, "/")

	if patternSlash == -1 {
		return matchLastSegment(topic, pattern, topicSlash)
	}

	return matchSegments(topic, pattern, patternSlash, topicSlash)
}

func matchLastSegment(topic, pattern string, topicSlash int) bool {
	if pattern == "+" {
		return topicSlash == -1
	}
	if pattern == "#" {
		return true
	}
	return topic == pattern
}

func matchSegments(topic, pattern string, patternSlash, topicSlash int) bool {
	if topicSlash == -1 {
		return false
	}

	patternSegment := pattern[:patternSlash]
	patternRest := pattern[patternSlash+1:]
	topicSegment := topic[:topicSlash]
	topicRest := topic[topicSlash+1:]

	if patternSegment == "+" {
		return matchMQTTPattern(topicRest, patternRest)
	}

	if patternSegment == "#" {
		return true
	}

	if patternSegment != topicSegment {
		return false
	}

	return matchMQTTPattern(topicRest, patternRest)
}
