package repository

// SetBatchSize lets tests force cleanup to span several batches.
func (r *CleanupRepo) SetBatchSize(n int) {
	r.batchSize = n
}
