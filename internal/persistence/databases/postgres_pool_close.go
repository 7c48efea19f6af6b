package databases

// Close allows the pg-backed full-text search struct to be closed via
// Manager.Close's type-assertion helper. pgVector and pgGraph implement
// Close() error directly to satisfy VectorStore/GraphStore.
func (p *pgSearch) Close() { p.pool.Close() }

func (p *pgVector) Close() error {
	p.pool.Close()
	return nil
}
