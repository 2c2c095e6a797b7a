// internal/workers/vehicle-lookup/resolver.go
package vehiclelookup

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"gearbox-workers/internal/common/errors"
	"gearbox-workers/internal/common/logger"
	"gearbox-workers/internal/models"
)

// Resolver merges the part catalog and the VIN-decode service into one
// Resolution. The catalog wins for part numbers; the decode service wins
// for general vehicle facts; catalog vehicle facts are the fallback.
type Resolver struct {
	catalog   *CatalogClient
	vinDecode *VinDecodeClient
	keyword   FieldClassifier
	llm       FieldClassifier
	logger    logger.Logger
}

func NewResolver(catalog *CatalogClient, vinDecode *VinDecodeClient, llmFallback FieldClassifier, log logger.Logger) *Resolver {
	return &Resolver{
		catalog:   catalog,
		vinDecode: vinDecode,
		keyword:   KeywordClassifier{},
		llm:       llmFallback,
		logger:    log,
	}
}

// Resolve runs both fetches concurrently and joins them. The VIN-decode
// branch never fails the resolution; a catalog failure is fatal because
// part data cannot come from anywhere else.
func (r *Resolver) Resolve(ctx context.Context, idType models.IdentifierType, value string) (*Resolution, error) {
	var cat *catalogResponse
	var decoded *decodeResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cat, err = r.catalog.Lookup(gctx, idType, value)
		return err
	})
	g.Go(func() error {
		if idType == models.IDTypeVIN {
			decoded = r.vinDecode.Decode(gctx, value)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	gearbox := models.GearboxInfo{
		OEM:           cat.Gearbox.OEM,
		Model:         cat.Gearbox.Model,
		OemCandidates: cat.Gearbox.OemCandidates,
	}
	// Normalize the catalog's status: some sources report NOT_AVAILABLE
	// while still carrying a model name, which is our MODEL_ONLY case.
	switch {
	case gearbox.OEM != "":
		gearbox.OemStatus = models.OemStatusFound
	case gearbox.Model != "":
		gearbox.OemStatus = models.OemStatusModelOnly
	default:
		gearbox.OemStatus = models.OemStatusNotAvailable
	}
	if gearbox.OEM == "" && gearbox.Model == "" {
		return nil, errors.NewParseFailedError(
			fmt.Sprintf("catalog yielded neither OEM nor model for %s", idType))
	}

	vehicle := r.mergeVehicle(ctx, cat, decoded)

	res := &Resolution{
		Gearbox:          gearbox,
		Vehicle:          vehicle,
		Evidence:         cat.Evidence,
		ModelDisplayable: isDisplayableModelName(gearbox.Model),
	}
	res.Confidence = computeConfidence(gearbox, cat.Evidence)
	return res, nil
}

// mergeVehicle applies the precedence rules and classifies drive and
// gearbox type from the raw catalog text.
func (r *Resolver) mergeVehicle(ctx context.Context, cat *catalogResponse, decoded *decodeResult) *models.VehicleContext {
	vehicle := &models.VehicleContext{RawCatalog: cat.VehicleMeta}

	if decoded != nil {
		vehicle.Make = decoded.Make
		vehicle.Model = decoded.Model
		vehicle.Year = decoded.Year
		vehicle.Engine = decoded.Engine
		vehicle.Body = decoded.Body
		vehicle.Displacement = decoded.Displacement
	}

	// Catalog facts fill whatever the decode service left empty.
	fillFromMeta := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, key := range keys {
			if v, ok := cat.VehicleMeta[key].(string); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	fillFromMeta(&vehicle.Make, "make", "brand")
	fillFromMeta(&vehicle.Model, "model")
	fillFromMeta(&vehicle.Year, "year")
	fillFromMeta(&vehicle.Engine, "engine")
	fillFromMeta(&vehicle.Body, "body", "frame")
	fillFromMeta(&vehicle.Displacement, "displacement")

	text := rawCatalogText(cat.VehicleMeta)
	drive, gearboxType := r.keyword.Classify(ctx, text)

	// The LLM fallback runs only when the keyword pass left a gap.
	if (drive == "" || gearboxType == "") && r.llm != nil && text != "" {
		llmDrive, llmGearbox := r.llm.Classify(ctx, text)
		if drive == "" {
			drive = llmDrive
		}
		if gearboxType == "" {
			gearboxType = llmGearbox
		}
	}
	vehicle.DriveType = drive
	vehicle.GearboxType = gearboxType

	return vehicle
}
