package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Login ids are sync GUIDs, not UUIDs, so GetID only reports an id when one
// happens to parse. Lookups go through the "id" identifier.

func loginLocalHandlers() repository.ModelHandlers[*loginLocalRecord] {
	return repository.ModelHandlers[*loginLocalRecord]{
		NewRecord: func() *loginLocalRecord {
			return &loginLocalRecord{}
		},
		GetID: func(record *loginLocalRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *loginLocalRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.ID) != "" {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *loginLocalRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func loginMirrorHandlers() repository.ModelHandlers[*loginMirrorRecord] {
	return repository.ModelHandlers[*loginMirrorRecord]{
		NewRecord: func() *loginMirrorRecord {
			return &loginMirrorRecord{}
		},
		GetID: func(record *loginMirrorRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *loginMirrorRecord, id uuid.UUID) {
			if record == nil || strings.TrimSpace(record.ID) != "" {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *loginMirrorRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}

func syncMetaHandlers() repository.ModelHandlers[*syncMetaRecord] {
	return repository.ModelHandlers[*syncMetaRecord]{
		NewRecord: func() *syncMetaRecord {
			return &syncMetaRecord{}
		},
		GetID: func(*syncMetaRecord) uuid.UUID {
			return uuid.Nil
		},
		SetID: func(*syncMetaRecord, uuid.UUID) {},
		GetIdentifier: func() string {
			return "meta_key"
		},
		GetIdentifierValue: func(record *syncMetaRecord) string {
			if record == nil {
				return ""
			}
			return record.Key
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
