package service

import (
	"github.com/bizzlechizzle/aupat/pkg/internal/model"
	"github.com/bizzlechizzle/aupat/pkg/internal/naming"
	"github.com/bizzlechizzle/aupat/pkg/internal/types"
)

// toEntity 把一行记录转成线路信封.
func toEntity(rec model.Record) types.Entity {
	base := rec.Base()
	e := types.Entity{
		Kind:       string(rec.Kind()),
		ID:         base.ID,
		DeviceID:   base.DeviceID,
		CreatedAt:  base.CreatedAt,
		UpdatedAt:  base.UpdatedAt,
		ModifiedAt: base.ModifiedAt,
	}

	switch r := rec.(type) {
	case *model.Location:
		e.Location = &types.LocationFields{
			Name:      r.Name,
			ShortName: r.ShortName,
			State:     r.State,
			Type:      r.Type,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		}
	case *model.URL:
		e.URL = &types.URLFields{
			LocationID:    r.LocationID,
			SubLocationID: r.SubLocationID,
			URL:           r.URL,
			Title:         r.Title,
		}
	case model.FileRecord:
		f := r.File()
		e.File = &types.FileFields{
			LocationID:    f.LocationID,
			SubLocationID: f.SubLocationID,
			Hash:          f.Hash,
			OriginalName:  f.OriginalName,
			CanonicalName: f.CanonicalName,
			ArchivePath:   f.ArchivePath,
			Extension:     f.Extension,
			Size:          f.Size,
			Verified:      f.Verified,
		}
	}

	return e
}

// applyFields 把信封中的字段写入记录（不含公共列）.
func applyFields(rec model.Record, e *types.Entity) {
	switch r := rec.(type) {
	case *model.Location:
		f := e.Location
		r.Name = f.Name
		r.ShortName = f.ShortName
		r.State = f.State
		r.Type = f.Type
		r.Latitude = f.Latitude
		r.Longitude = f.Longitude

		if r.ShortName == "" {
			r.ShortName = naming.ShortName(f.Name)
		}
	case *model.URL:
		f := e.URL
		r.LocationID = f.LocationID
		r.SubLocationID = f.SubLocationID
		r.URL = f.URL
		r.Title = f.Title
	}
}

func locationInfo(l *model.Location) types.LocationInfo {
	return types.LocationInfo{
		ID:        l.ID,
		Name:      l.Name,
		ShortName: l.ShortName,
		State:     l.State,
		Type:      l.Type,
		Latitude:  l.Latitude,
		Longitude: l.Longitude,
		DeviceID:  l.DeviceID,
	}
}

func logEntry(l *model.SyncLog) types.SyncLogEntry {
	return types.SyncLogEntry{
		ID:            l.ID,
		Direction:     string(l.Direction),
		DeviceID:      l.DeviceID,
		Timestamp:     l.Timestamp,
		ItemCount:     l.ItemCount,
		ConflictCount: l.ConflictCount,
		RejectedCount: l.RejectedCount,
		Outcome:       string(l.Outcome),
		Detail:        l.Detail,
	}
}
