// Package ndrange holds the NDRange data model: the N-dimensional index
// space of a kernel launch, partitioned into equal work-groups. Building
// and validating one from host-side kernel arguments is out of scope
// here; New only accepts already-aligned sizes.
package ndrange

import "fmt"

// MaxDims is the maximum number of index dimensions a kernel may declare.
const MaxDims = 3

// NDRange is the full index space of one kernel launch.
type NDRange struct {
	WorkDim      int
	GlobalSize   [MaxDims]uint32
	LocalSize    [MaxDims]uint32
	GlobalOffset [MaxDims]uint32

	// WorkGroupCount is the number of work-groups per dimension, derived
	// from GlobalSize/LocalSize.
	WorkGroupCount [MaxDims]uint32
	// NumGroups is the total number of work-groups in the NDRange.
	NumGroups int
}

// New builds an NDRange from already-validated, already-aligned
// dimensions. global[i] must be an exact multiple of local[i] for every
// active dimension; violating this is a programmer contract error, not a
// recoverable one, so New panics rather than returning an error.
func New(workDim int, global, local, offset []uint32) NDRange {
	if workDim < 1 || workDim > MaxDims {
		panic(fmt.Sprintf("ndrange: work_dim %d out of range [1,%d]", workDim, MaxDims))
	}
	if len(global) < workDim || len(local) < workDim {
		panic("ndrange: global/local size vectors shorter than work_dim")
	}

	nd := NDRange{WorkDim: workDim}
	numGroups := 1
	for i := 0; i < MaxDims; i++ {
		nd.GlobalSize[i] = 1
		nd.LocalSize[i] = 1
	}
	for i := 0; i < workDim; i++ {
		if local[i] == 0 || global[i]%local[i] != 0 {
			panic(fmt.Sprintf("ndrange: global_size[%d]=%d is not a multiple of local_size[%d]=%d",
				i, global[i], i, local[i]))
		}
		nd.GlobalSize[i] = global[i]
		nd.LocalSize[i] = local[i]
		if i < len(offset) {
			nd.GlobalOffset[i] = offset[i]
		}
		nd.WorkGroupCount[i] = global[i] / local[i]
		numGroups *= int(nd.WorkGroupCount[i])
	}
	nd.NumGroups = numGroups
	return nd
}

// NumItemsPerGroup returns the product of the local size over work_dim
// dimensions.
func (nd NDRange) NumItemsPerGroup() int {
	n := 1
	for i := 0; i < nd.WorkDim; i++ {
		n *= int(nd.LocalSize[i])
	}
	return n
}

// GroupGlobal computes the global index of work-item (0,0,0) within
// work-group groupID, given the NDRange's starting group coordinates
// workGroupStart (used for partial-NDRange runs; pass the zero vector for
// a whole-NDRange run).
func GroupGlobal(nd NDRange, groupID, workGroupStart [MaxDims]uint32) [MaxDims]uint32 {
	var gg [MaxDims]uint32
	for j := 0; j < MaxDims; j++ {
		gg[j] = (groupID[j] + workGroupStart[j]) * nd.LocalSize[j]
		if j < nd.WorkDim {
			gg[j] += nd.GlobalOffset[j]
		}
	}
	return gg
}

// Address performs the row-major decomposition of a flat index over sizes,
// used both to turn a flat group number into group coordinates and a flat
// local item index into local coordinates.
func Address(workDim int, index int, sizes [MaxDims]uint32) [MaxDims]uint32 {
	var coord [MaxDims]uint32
	remaining := index
	for i := 0; i < workDim; i++ {
		coord[i] = uint32(remaining) % sizes[i]
		remaining /= int(sizes[i])
	}
	return coord
}
