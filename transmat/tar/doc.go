/*
	The tar transmat converts a compressed tar archive byte stream
	into a single content-addressed directory tree in a target store.

	The conventional single top-level directory inside each published
	tarball is stripped; archive contents appear at the root of the
	produced tree.  Nothing is ever written to a real filesystem.
*/
package tartrans
