package cluster

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/duration"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubeSource obtains pod status from the Kubernetes API.
type KubeSource struct {
	client kubernetes.Interface
	limit  int64
	now    func() time.Time
}

// NewKubeSource wraps an existing clientset.
func NewKubeSource(client kubernetes.Interface) *KubeSource {
	return &KubeSource{
		client: client,
		limit:  DefaultLimit,
		now:    time.Now,
	}
}

// NewKubeSourceFromEnv builds a clientset from the in-cluster configuration,
// falling back to the file named by KUBECONFIG.
func NewKubeSourceFromEnv() (*KubeSource, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := strings.TrimSpace(os.Getenv("KUBECONFIG"))
		if kubeconfig == "" {
			return nil, fmt.Errorf("create in-cluster config: %w", err)
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("create kubeconfig client: %w", err)
		}
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewKubeSource(clientset), nil
}

// Status lists pods in namespace and renders one row per pod with the
// columns NAME READY STATUS RESTARTS AGE, without a header. The client is
// fixed at construction, so env is ignored.
func (s *KubeSource) Status(ctx context.Context, namespace string, _ []string) (string, error) {
	pods, err := s.client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{Limit: s.limit})
	if err != nil {
		return "", fmt.Errorf("list pods in %q: %w", namespace, err)
	}

	var b strings.Builder
	w := tabwriter.NewWriter(&b, 0, 0, 3, ' ', 0)
	now := s.now()
	for i := range pods.Items {
		if int64(i) >= s.limit {
			break
		}
		pod := &pods.Items[i]
		ready, total, restarts := containerCounts(pod)
		fmt.Fprintf(w, "%s\t%d/%d\t%s\t%d\t%s\n",
			pod.Name, ready, total, podStatus(pod), restarts,
			duration.HumanDuration(now.Sub(pod.CreationTimestamp.Time)))
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func containerCounts(pod *corev1.Pod) (ready, total int, restarts int32) {
	total = len(pod.Spec.Containers)
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
	}
	return ready, total, restarts
}

// podStatus approximates the STATUS column printed by kubectl.
func podStatus(pod *corev1.Pod) string {
	if pod.DeletionTimestamp != nil {
		return "Terminating"
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" && pod.Status.Phase != corev1.PodSucceeded {
			return cs.State.Terminated.Reason
		}
	}
	if pod.Status.Reason != "" {
		return pod.Status.Reason
	}
	if pod.Status.Phase == corev1.PodSucceeded {
		return "Completed"
	}
	return string(pod.Status.Phase)
}
