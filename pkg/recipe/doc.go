// Package recipe holds the exporter's recipe model and turns KptnCook API
// recipes into it.
//
// Quantities stay in the unit the API uses, per ReferenceServings. They are
// only scaled and formatted when a line is rendered, through IngredientLine.
package recipe
