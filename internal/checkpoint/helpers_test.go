package checkpoint

// newReport builds a report whose checkpoints have the given types, indexed
// from zero.
func newReport(storageID int, types ...Type) *Report {
	r := &Report{StorageName: "test", StorageID: storageID, Name: "report"}
	level := 0
	for i, t := range types {
		if t.Closes() && level > 0 {
			level--
		}
		r.Checkpoints = append(r.Checkpoints, &Checkpoint{
			Index: i,
			Level: level,
			Type:  t,
			Name:  t.String(),
		})
		if t.Opens() {
			level++
		}
	}
	return r
}
