package hdi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLine struct {
	values []int
	closed bool
}

func (f *fakeLine) SetValue(v int) error {
	f.values = append(f.values, v)
	return nil
}

func (f *fakeLine) Close() error {
	f.closed = true
	return nil
}

func (f *fakeLine) last() int {
	if len(f.values) == 0 {
		return -1
	}
	return f.values[len(f.values)-1]
}

func TestGPIORouteProxy_InitDrivesLineHigh(t *testing.T) {
	line := &fakeLine{}
	p := newGPIORouteProxy(line, false)

	reply, err := p.Send(NewCommand(TagInit))
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Equal(t, 1, line.last())
}

func TestGPIORouteProxy_DestroyDrivesLineLow(t *testing.T) {
	line := &fakeLine{}
	p := newGPIORouteProxy(line, false)

	_, err := p.Send(NewCommand(TagInit))
	require.NoError(t, err)
	_, err = p.Send(NewCommand(TagDestroy))
	require.NoError(t, err)
	assert.Equal(t, 0, line.last())
}

func TestGPIORouteProxy_InvertFlipsPolarity(t *testing.T) {
	line := &fakeLine{}
	p := newGPIORouteProxy(line, true)

	_, err := p.Send(NewCommand(TagInit))
	require.NoError(t, err)
	assert.Equal(t, 0, line.last(), "inverted wiring must drive low for an active state")
}

func TestGPIORouteProxy_BypassSetsRelayOppositeOfBypassFlag(t *testing.T) {
	line := &fakeLine{}
	p := newGPIORouteProxy(line, false)

	_, err := p.Send(NewCommand(TagBypass, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, line.last(), "bypassed must drive the relay low")

	_, err = p.Send(NewCommand(TagBypass, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, line.last(), "not bypassed must drive the relay high")
}

func TestGPIORouteProxy_UnknownTagsAreAcknowledgedWithoutTouchingLine(t *testing.T) {
	line := &fakeLine{}
	p := newGPIORouteProxy(line, false)

	reply, err := p.Send(NewCommand(TagVolume, 50))
	require.NoError(t, err)
	assert.True(t, reply.OK())
	assert.Empty(t, line.values)
}

func TestGPIORouteProxy_Close(t *testing.T) {
	line := &fakeLine{}
	p := newGPIORouteProxy(line, false)
	require.NoError(t, p.Close())
	assert.True(t, line.closed)
}
