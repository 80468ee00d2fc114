package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches_NoConditionsAlwaysFires(t *testing.T) {
	rule := Rule{EventKind: "gift", LogicOperator: LogicAND}
	ev := Event{Kind: "gift", Fields: map[string]string{"gift_name": "Rose"}}
	assert.True(t, Matches(rule, ev))
}

func TestMatches_SessionFilter(t *testing.T) {
	rule := Rule{EventKind: "gift", SessionFilter: "sess-1"}
	assert.True(t, Matches(rule, Event{Kind: "gift", Fields: map[string]string{"session": "sess-1"}}))
	assert.False(t, Matches(rule, Event{Kind: "gift", Fields: map[string]string{"session": "sess-2"}}))
}

func TestMatches_WrongEventKindNeverFires(t *testing.T) {
	rule := Rule{EventKind: "gift"}
	assert.False(t, Matches(rule, Event{Kind: "like", Fields: map[string]string{}}))
}

func TestEvaluateCondition_NumericThreshold(t *testing.T) {
	cond := Condition{Field: "diamond_count", Operator: OpGreater, Value: "10"}
	assert.True(t, evaluateCondition(cond, map[string]string{"diamond_count": "11"}))
	assert.False(t, evaluateCondition(cond, map[string]string{"diamond_count": "10"}))
	assert.False(t, evaluateCondition(cond, map[string]string{"diamond_count": "abc"}))
}

func TestEvaluateCondition_MissingFieldIsFalse(t *testing.T) {
	cond := Condition{Field: "gift_name", Operator: OpEqual, Value: "Rose"}
	assert.False(t, evaluateCondition(cond, map[string]string{}))
}

func TestEvaluateCondition_InOperator(t *testing.T) {
	cond := Condition{Field: "tier", Operator: OpIn, Value: "a, b, c"}
	assert.True(t, evaluateCondition(cond, map[string]string{"tier": "b"}))
	assert.False(t, evaluateCondition(cond, map[string]string{"tier": "d"}))
}

func TestEvaluateCondition_NotInOperator(t *testing.T) {
	cond := Condition{Field: "tier", Operator: OpNotIn, Value: "a, b, c"}
	assert.False(t, evaluateCondition(cond, map[string]string{"tier": "a"}))
	assert.True(t, evaluateCondition(cond, map[string]string{"tier": "d"}))
}

func TestEvaluateCondition_ContainsCaseInsensitive(t *testing.T) {
	cond := Condition{Field: "comment", Operator: OpContains, Value: "HELLO"}
	assert.True(t, evaluateCondition(cond, map[string]string{"comment": "well hello there"}))
}

func TestEvaluateConditions_Logic(t *testing.T) {
	conds := []Condition{
		{Field: "a", Operator: OpEqual, Value: "1"},
		{Field: "b", Operator: OpEqual, Value: "2"},
	}
	fields := map[string]string{"a": "1", "b": "x"}
	assert.False(t, evaluateConditions(LogicAND, conds, fields))
	assert.True(t, evaluateConditions(LogicOR, conds, fields))
}

func TestEvaluateConditions_VacuousOR(t *testing.T) {
	assert.True(t, evaluateConditions(LogicOR, nil, map[string]string{}))
}

func TestEqualsCoerced_Boolean(t *testing.T) {
	cond := Condition{Field: "streaking", Operator: OpEqual, Value: "yes"}
	assert.True(t, evaluateCondition(cond, map[string]string{"streaking": "true"}))
}
