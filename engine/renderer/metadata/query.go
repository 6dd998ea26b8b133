package metadata

/** @brief What a query measures. */
type QueryKind uint8

const (
	/** @brief GPU time between Begin and End, in nanoseconds. */
	QueryTimeElapsed QueryKind = iota
	/** @brief Number of samples passing the depth test. */
	QuerySamplesDrawn
	/** @brief Non-zero if any sample passed the depth test. */
	QueryAnyDrawn
	QueryKindCount
)

/** @brief The native pool type backing a query kind. */
type QueryPoolKind uint8

const (
	QueryPoolTimestamp QueryPoolKind = iota
	QueryPoolOcclusion
)

func (k QueryKind) Pool() QueryPoolKind {
	if k == QueryTimeElapsed {
		return QueryPoolTimestamp
	}
	return QueryPoolOcclusion
}

/** @brief Number of pool slots one query of this kind consumes. */
func (k QueryKind) Slots() uint32 {
	if k == QueryTimeElapsed {
		return 2
	}
	return 1
}

func (k QueryKind) String() string {
	switch k {
	case QueryTimeElapsed:
		return "time elapsed"
	case QuerySamplesDrawn:
		return "samples drawn"
	case QueryAnyDrawn:
		return "any drawn"
	}
	return "unknown"
}
