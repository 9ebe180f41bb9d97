// Package testing provides a standardised conformance suite for
// implementations of the storage.IStorage interface. Every backend runs the
// same tests so the statement kinds behave identically no matter where the
// rows are stored.
//
// Example usage:
//
//	func Test(t *testing.T) {
//		storagetesting.RunStorageTests(t, "MyStorage", func(t *testing.T) storage.IStorage {
//			return NewMyStorage(t.TempDir())
//		})
//	}
package testing
