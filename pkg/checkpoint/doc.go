// Package checkpoint records which favorites an export run has already
// written, so an interrupted run can resume without rendering them again.
//
// One checkpoint file is kept per account in the platform data directory:
//   - Linux: ~/.local/share/kptnexport/checkpoints/ (or $XDG_DATA_HOME)
//   - macOS: ~/Library/Application Support/kptnexport/checkpoints/
//   - Windows: %APPDATA%/kptnexport/checkpoints/
//
// Files are written atomically and carry a format version.
package checkpoint
