// internal/workers/vehicle-lookup/classifier.go
package vehiclelookup

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gearbox-workers/internal/common/llm"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// FieldClassifier extracts drive type and gearbox type from free catalog
// text. Empty return values mean "unknown".
type FieldClassifier interface {
	Classify(ctx context.Context, text string) (models.DriveType, models.GearboxType)
}

// Keyword vocabularies, English and Russian. Token matching is
// substring-based on a lowercased text because catalog fields glue words
// together ("4WD/AT", "МКПП5").
var (
	fourWDTerms = []string{"4wd", "awd", "4x4", "4вд", "полный привод", "полноприводн"}
	twoWDTerms  = []string{"2wd", "fwd", "rwd", "2вд", "передний привод", "задний привод", "моноприводн"}

	cvtTerms = []string{"cvt", "вариатор", "бесступенчат"}
	mtTerms  = []string{"мкпп", "механика", "механическая", "manual", "5mt", "6mt", " mt", "mt "}
	atTerms  = []string{"акпп", "автомат", "автоматическая", "automatic", " at", "at ", "4at", "5at", "6at"}
)

// KeywordClassifier is the pure primary classifier.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, text string) (models.DriveType, models.GearboxType) {
	norm := " " + strings.ToLower(text) + " "

	var drive models.DriveType
	if containsAny(norm, fourWDTerms) {
		drive = models.Drive4WD
	} else if containsAny(norm, twoWDTerms) {
		drive = models.Drive2WD
	}

	// CVT terms first: a CVT listing often also says "автомат".
	var gearbox models.GearboxType
	if containsAny(norm, cvtTerms) {
		gearbox = models.GearboxCVT
	} else if containsAny(norm, mtTerms) {
		gearbox = models.GearboxMT
	} else if containsAny(norm, atTerms) {
		gearbox = models.GearboxAT
	}

	return drive, gearbox
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// LLMClassifier is the fallback, used only when the keyword classifier
// leaves at least one field unresolved. Failures degrade to "unknown".
type LLMClassifier struct {
	client *llm.Client
	logger logger.Logger
}

func NewLLMClassifier(client *llm.Client, log logger.Logger) *LLMClassifier {
	return &LLMClassifier{client: client, logger: log}
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (models.DriveType, models.GearboxType) {
	prompt := fmt.Sprintf(
		"From the following vehicle catalog text, extract the drive type and gearbox type.\n"+
			"Reply with strict JSON only: {\"driveType\": \"2WD\"|\"4WD\"|null, \"gearboxType\": \"MT\"|\"AT\"|\"CVT\"|null}\n\nText:\n%s",
		truncateText(text, 2000))

	var out struct {
		DriveType   *string `json:"driveType"`
		GearboxType *string `json:"gearboxType"`
	}
	if err := c.client.CompleteJSON(ctx, []llm.Message{{Role: "user", Content: prompt}}, &out); err != nil {
		c.logger.Warn("llm classifier failed, leaving fields unknown", map[string]interface{}{
			"error": err.Error(),
		})
		return "", ""
	}

	var drive models.DriveType
	if out.DriveType != nil {
		switch *out.DriveType {
		case "2WD":
			drive = models.Drive2WD
		case "4WD":
			drive = models.Drive4WD
		}
	}

	var gearbox models.GearboxType
	if out.GearboxType != nil {
		switch *out.GearboxType {
		case "MT":
			gearbox = models.GearboxMT
		case "AT":
			gearbox = models.GearboxAT
		case "CVT":
			gearbox = models.GearboxCVT
		}
	}

	return drive, gearbox
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// rawCatalogText flattens the raw catalog payload for classification.
func rawCatalogText(meta map[string]interface{}) string {
	if len(meta) == 0 {
		return ""
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return ""
	}
	return string(body)
}
