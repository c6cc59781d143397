// Package render turns recipes into PDF or Markdown documents.
//
// Both renderers share the same preparation step: ingredient amounts are
// scaled from the recipe's reference servings to the configured target and
// formatted with a quantity.Formatter before any layout happens, so a recipe
// with invalid serving data fails before a file is created.
package render
