// Package hclprog reads and writes programs in an HCL syntax:
//
//	var "x" {
//	  dims = [1, 3, 224, 224]
//	}
//	var "w" {
//	  dims        = [16, 3, 3, 3]
//	  persistable = true
//	}
//
//	op "conv2d" {
//	  inputs      = { Input = ["x"] }
//	  para_inputs = { Filter = ["w"] }
//	  outputs     = { Output = ["c"] }
//	  attrs       = { strides = [1, 1], groups = 1 }
//	}
//
//	fetch = ["c"]
//
// Attribute numbers without a fractional part become int attributes.
package hclprog
