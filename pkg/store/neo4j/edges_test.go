package neo4j

import "testing"

func TestNormalizedEdgeID(t *testing.T) {
	idAB, reversedAB := normalizedEdgeID("a", "b", "knows", "idx")
	idBA, reversedBA := normalizedEdgeID("b", "a", "knows", "idx")

	if idAB != idBA {
		t.Errorf("edge id differs for swapped endpoints: %s vs %s", idAB, idBA)
	}
	if reversedAB {
		t.Errorf("reversed = true for already-ordered endpoints")
	}
	if !reversedBA {
		t.Errorf("reversed = false for swapped endpoints")
	}
}

func TestNormalizedEdgeIDVariesWithInputs(t *testing.T) {
	base, _ := normalizedEdgeID("a", "b", "knows", "idx")

	otherRel, _ := normalizedEdgeID("a", "b", "likes", "idx")
	if base == otherRel {
		t.Errorf("edge id ignores relationship label")
	}

	otherIndex, _ := normalizedEdgeID("a", "b", "knows", "other")
	if base == otherIndex {
		t.Errorf("edge id ignores index")
	}

	otherPair, _ := normalizedEdgeID("a", "c", "knows", "idx")
	if base == otherPair {
		t.Errorf("edge id ignores endpoints")
	}
}

func TestNormalizedEdgeIDIsStable(t *testing.T) {
	first, _ := normalizedEdgeID("a", "b", "knows", "idx")
	second, _ := normalizedEdgeID("a", "b", "knows", "idx")
	if first != second {
		t.Errorf("edge id is not deterministic: %s vs %s", first, second)
	}
}
