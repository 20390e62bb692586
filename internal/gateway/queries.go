package gateway

import (
	"context"
	"errors"
	"math/big"

	"github.com/educhain-network/educhain-go/internal/chain"
	"github.com/educhain-network/educhain-go/internal/educhain"
)

// Read-only contract queries. These never mutate and fail only on
// transport errors or malformed responses.

var courseReturnTypes = []string{"uint256", "address", "string", "string", "uint256", "string", "uint256"}
var certificateReturnTypes = []string{"uint256", "address", "uint256", "uint256", "bool"}
var progressReturnTypes = []string{"bool", "uint256", "bool"}

// call executes a read-only contract call and decodes its return values.
func (g *Gateway) call(ctx context.Context, signature string, returnTypes []string, args ...chain.Param) ([]interface{}, error) {
	data, err := chain.EncodeCall(signature, args...)
	if err != nil {
		return nil, educhain.WrapError(educhain.ErrCodeValidation, "encode "+signature, err)
	}

	out, err := g.client.EthCall(ctx, chain.CallMsg{To: g.contract, Data: data})
	if err != nil {
		var rpcErr *chain.RPCError
		if errors.As(err, &rpcErr) {
			return nil, educhain.WrapError(educhain.ErrCodeTransport, "ledger query failed: "+signature, err)
		}
		return nil, educhain.WrapError(educhain.ErrCodeTransport, "ledger unreachable: "+signature, err)
	}

	values, err := chain.DecodeReturn(out, returnTypes)
	if err != nil {
		return nil, educhain.WrapError(educhain.ErrCodeDecode, "malformed response for "+signature, err)
	}
	return values, nil
}

// GetCourse returns the course record for the given ID.
func (g *Gateway) GetCourse(ctx context.Context, id educhain.CourseID) (*educhain.Course, error) {
	values, err := g.call(ctx, "courses(uint256)", courseReturnTypes, chain.Uint64(uint64(id)))
	if err != nil {
		return nil, err
	}
	return courseFromValues(values)
}

// GetCourseCount returns the total number of courses on the ledger.
func (g *Gateway) GetCourseCount(ctx context.Context) (uint64, error) {
	values, err := g.call(ctx, "getCourseCount()", []string{"uint256"})
	if err != nil {
		return 0, err
	}
	return values[0].(*big.Int).Uint64(), nil
}

// GetAllCourses walks the course counter and returns every course. Course
// IDs are assigned from 1 upward.
func (g *Gateway) GetAllCourses(ctx context.Context) ([]*educhain.Course, error) {
	count, err := g.GetCourseCount(ctx)
	if err != nil {
		return nil, err
	}

	courses := make([]*educhain.Course, 0, count)
	for id := uint64(1); id <= count; id++ {
		course, err := g.GetCourse(ctx, educhain.CourseID(id))
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, nil
}

// GetCoursesByTeacher returns the courses created by the given teacher.
func (g *Gateway) GetCoursesByTeacher(ctx context.Context, teacher educhain.AccountID) ([]*educhain.Course, error) {
	ids, err := g.courseIDsByTeacher(ctx, teacher)
	if err != nil {
		return nil, err
	}
	return g.coursesByIDs(ctx, ids)
}

// GetCoursesByStudent returns the courses the given student is enrolled in.
func (g *Gateway) GetCoursesByStudent(ctx context.Context, student educhain.AccountID) ([]*educhain.Course, error) {
	values, err := g.call(ctx, "getStudentCourses(address)", []string{"uint256[]"}, chain.Addr(string(student)))
	if err != nil {
		return nil, err
	}
	return g.coursesByIDs(ctx, bigIntsToUint64s(values[0].([]*big.Int)))
}

// GetProgress returns the student's progress record for a course.
func (g *Gateway) GetProgress(ctx context.Context, courseID educhain.CourseID, student educhain.AccountID) (educhain.Progress, error) {
	values, err := g.call(ctx, "getStudentProgress(uint256,address)", progressReturnTypes,
		chain.Uint64(uint64(courseID)), chain.Addr(string(student)))
	if err != nil {
		return educhain.Progress{}, err
	}
	return educhain.Progress{
		Enrolled:         values[0].(bool),
		CompletedModules: uint32(values[1].(*big.Int).Uint64()),
		Passed:           values[2].(bool),
	}, nil
}

// GetCertificate returns the certificate record for the given ID.
func (g *Gateway) GetCertificate(ctx context.Context, id educhain.CertificateID) (*educhain.Certificate, error) {
	values, err := g.call(ctx, "certificates(uint256)", certificateReturnTypes, chain.Uint64(uint64(id)))
	if err != nil {
		return nil, err
	}
	return certificateFromValues(values), nil
}

// GetCertificatesByStudent returns all certificates issued to the student.
func (g *Gateway) GetCertificatesByStudent(ctx context.Context, student educhain.AccountID) ([]*educhain.Certificate, error) {
	ids, err := g.certificateIDsByStudent(ctx, student)
	if err != nil {
		return nil, err
	}

	certs := make([]*educhain.Certificate, 0, len(ids))
	for _, id := range ids {
		cert, err := g.GetCertificate(ctx, educhain.CertificateID(id))
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func (g *Gateway) courseIDsByTeacher(ctx context.Context, teacher educhain.AccountID) ([]uint64, error) {
	values, err := g.call(ctx, "getTeacherCourses(address)", []string{"uint256[]"}, chain.Addr(string(teacher)))
	if err != nil {
		return nil, err
	}
	return bigIntsToUint64s(values[0].([]*big.Int)), nil
}

func (g *Gateway) certificateIDsByStudent(ctx context.Context, student educhain.AccountID) ([]uint64, error) {
	values, err := g.call(ctx, "getStudentCertificates(address)", []string{"uint256[]"}, chain.Addr(string(student)))
	if err != nil {
		return nil, err
	}
	return bigIntsToUint64s(values[0].([]*big.Int)), nil
}

func (g *Gateway) coursesByIDs(ctx context.Context, ids []uint64) ([]*educhain.Course, error) {
	courses := make([]*educhain.Course, 0, len(ids))
	for _, id := range ids {
		course, err := g.GetCourse(ctx, educhain.CourseID(id))
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, nil
}

func courseFromValues(values []interface{}) (*educhain.Course, error) {
	return &educhain.Course{
		ID:          educhain.CourseID(values[0].(*big.Int).Uint64()),
		Teacher:     educhain.AccountID(values[1].(string)),
		Title:       values[2].(string),
		Description: values[3].(string),
		Price:       values[4].(*big.Int),
		ContentURL:  values[5].(string),
		ModuleCount: uint32(values[6].(*big.Int).Uint64()),
	}, nil
}

func certificateFromValues(values []interface{}) *educhain.Certificate {
	return &educhain.Certificate{
		ID:       educhain.CertificateID(values[0].(*big.Int).Uint64()),
		Student:  educhain.AccountID(values[1].(string)),
		CourseID: educhain.CourseID(values[2].(*big.Int).Uint64()),
		IssuedAt: values[3].(*big.Int).Uint64(),
		Issued:   values[4].(bool),
	}
}

func bigIntsToUint64s(in []*big.Int) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = v.Uint64()
	}
	return out
}
