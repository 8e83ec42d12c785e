package scenario

// Settings configures the built-in scenarios.
type Settings struct {
	Backup  BackupTarget
	Tablets TabletSettings
}

// All returns every built-in scenario in their default run order.
func All(s Settings) []Scenario {
	return []Scenario{
		&SimpleBackup{Target: s.Backup},
		&AbortableBackup{Target: s.Backup, LogTimeout: s.Tablets.LogTimeout},
		&StreamingTopologyGuard{Settings: s.Tablets},
		&TableDroppedDuringStreaming{Settings: s.Tablets},
		&TabletScans{Settings: s.Tablets},
		&DropWithShuffle{Settings: s.Tablets},
	}
}
