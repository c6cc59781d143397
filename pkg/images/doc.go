// Package images stores downloaded step images under stable names.
//
// A name is derived from the recipe, the step number and a hash of the
// image URL, so repeated exports find images from earlier runs and skip
// the download:
//
//	store, err := images.NewStore(cfg.ImagePath(), log)
//	name := images.Filename(r.ID, step.Number, step.ImageURL)
//	if !store.IsDownloaded(name) {
//		// fetch and store.Save(name, body)
//	}
package images
