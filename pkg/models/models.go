package models

// AllModels returns all GORM models for auto-migration.
func AllModels() []any {
	return []any{
		&User{},
		&Group{},
		&Permission{},
		&Host{},
		&LowLevelService{},
		&HighLevelService{},
		&Map{},
		&Graph{},
		&PerfDataSource{},
	}
}
