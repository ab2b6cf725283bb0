// Package utils holds small conversions between Go values and nullable SQL columns.
//
// Empty strings and nil time pointers are stored as NULL:
//
//	utils.ToNullString("")          // NULL
//	utils.NullTimePtr(row.LockedAt) // nil when the column is NULL
package utils
