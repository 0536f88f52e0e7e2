package http

import (
	"net/http"

	"github.com/aukilabs/cellgrid/gridindex"
	"github.com/aukilabs/cellgrid/models"
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// RegionInfo describes a region in the debug endpoint.
type RegionInfo struct {
	ID               string               `json:"id"`
	UUID             string               `json:"uuid"`
	Preset           string               `json:"preset"`
	Frame            uint64               `json:"frame"`
	ParticipantCount int                  `json:"participant_count"`
	EntityCount      int                  `json:"entity_count"`
	OverlapCount     int                  `json:"overlap_count"`
	Grid             *gridindex.DebugInfo `json:"grid,omitempty"`
}

// HandleRegions lists the regions of the store. The grid occupancy of a
// region is included when its id is given with the id query parameter.
func HandleRegions(regions *models.RegionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := r.URL.Query().Get("id"); id != "" {
			region, ok := regions.GetByGlobalID(id)
			if !ok {
				NotFound(w, errors.New("region not found").WithTag("region_id", id))
				return
			}

			info := newRegionInfo(regions, region)
			debugInfo := region.DebugInfo()
			info.Grid = &debugInfo
			JSON(w, http.StatusOK, info)
			return
		}

		list := regions.List()
		res := make([]RegionInfo, len(list))
		for i, region := range list {
			res[i] = newRegionInfo(regions, region)
		}
		JSON(w, http.StatusOK, res)
	}
}

func newRegionInfo(regions *models.RegionStore, region *models.Region) RegionInfo {
	return RegionInfo{
		ID:               regions.GlobalRegionID(region.ID),
		UUID:             region.RegionUUID,
		Preset:           region.Preset,
		Frame:            region.Frame(),
		ParticipantCount: region.ParticipantCount(),
		EntityCount:      len(region.Entities()),
		OverlapCount:     len(region.OverlapPairs()),
	}
}
