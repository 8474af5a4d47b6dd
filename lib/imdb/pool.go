package imdb

import "fmt"

// blockPool provides the memory of formatted blocks
type blockPool interface {
	alloc() ([]byte, error)
	free(b []byte)
	close()
}

// --------------------------------------------------------------------------
// Heap pool
// --------------------------------------------------------------------------

type heapPool struct {
	blockSize int
}

func (p *heapPool) alloc() ([]byte, error) {
	return make([]byte, p.blockSize), nil
}

func (p *heapPool) free([]byte) {}

func (p *heapPool) close() {}

// --------------------------------------------------------------------------
// Backed pool
// --------------------------------------------------------------------------

// backedPool stores every block as an object of a fixed size class of a
// backing database
type backedPool struct {
	backing *DB
	class   ClassHandle
	ids     map[*byte]RowID
}

func newBackedPool(backing *DB, owner string, blockSize int) (*backedPool, error) {
	name := fmt.Sprintf("blocks-%s", owner)
	h, err := backing.ClassFind(name)
	if err == nil {
		// reopened durable database, reuse its class
		ci, err := backing.ClassInfo(h)
		if err != nil {
			return nil, err
		}
		if ci.Def.Variable || ci.Def.ObjSize != blockSize {
			return nil, newError(RetCInvalidDef, "backing class %s does not hold blocks of %d bytes", name, blockSize)
		}
	} else {
		h, err = backing.ClassCreate(ClassDef{
			Name:       name,
			ObjSize:    blockSize,
			PageBlocks: 16,
		})
		if err != nil {
			return nil, err
		}
	}
	Logger.Debugf("block memory of %s is backed by class %s", owner, name)
	return &backedPool{backing: backing, class: h, ids: make(map[*byte]RowID)}, nil
}

func (p *backedPool) alloc() ([]byte, error) {
	obj, err := p.backing.Insert(p.class, 0)
	if err != nil {
		return nil, err
	}
	p.ids[&obj.Data[0]] = obj.ID
	return obj.Data, nil
}

func (p *backedPool) free(b []byte) {
	id, ok := p.ids[&b[0]]
	if !ok {
		return
	}
	delete(p.ids, &b[0])
	if err := p.backing.Delete(p.class, id); err != nil {
		Logger.Warningf("failed to release backed block %s: %v", id, err)
	}
}

func (p *backedPool) close() {
	for ptr, id := range p.ids {
		if err := p.backing.Delete(p.class, id); err != nil {
			Logger.Warningf("failed to release backed block %s: %v", id, err)
		}
		delete(p.ids, ptr)
	}
}
