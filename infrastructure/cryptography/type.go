package cryptography

// IdentifierHasher produces a deterministic one-way digest for a document
// identifier. Equal inputs must always yield equal digests because the
// digests back the uniqueness indexes in the record store.
type IdentifierHasher interface {
	Hash(id string) string
}
